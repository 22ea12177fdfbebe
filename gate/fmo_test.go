package gate

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabbondanza/cytogate/events"
	"github.com/fabbondanza/cytogate/internal/testutil"
	"github.com/fabbondanza/cytogate/population"
)

func guidedGate(t *testing.T, tbl *events.Table, controlX, controlY *events.Table) *GuidedThresholdGate {
	t.Helper()
	ctx, err := NewContext(tbl, contextCollection(t), DefaultContextConfig("cd4"))
	require.NoError(t, err)
	return NewGuidedThresholdGate(ctx, GuidedConfig{Estimator: testEstimator}, controlX, controlY)
}

func TestGuidedGateAcceptsNearbyControl(t *testing.T) {
	t.Parallel()
	// A control identical to the whole panel sits exactly on the minimum
	// density region (z-score 0), so the two thresholds are averaged, which
	// here reproduces the plain gate's threshold under the guided method name.
	rng := rand.New(rand.NewSource(11))
	values := testutil.Bimodal(rng, 1000, 0, 10, 0.5)
	tbl := testutil.TableX(t, "cd4", values)
	control := testutil.TableX(t, "cd4", values)

	out, diag, err := guidedGate(t, tbl, control, nil).GateOneDimension(population.Overwrite)
	require.NoError(t, err)
	assert.Empty(t, diag.Warnings)

	pos := getPop(t, out, "pos")
	assert.Equal(t, MethodFMOGuided, pos.Geom.Method)

	plainCtx, err := NewContext(testutil.TableX(t, "cd4", values), contextCollection(t), DefaultContextConfig("cd4"))
	require.NoError(t, err)
	plain, _, err := NewThresholdGate(plainCtx, testEstimator).GateOneDimension(population.Overwrite)
	require.NoError(t, err)

	plainPos := getPop(t, plain, "pos")
	assert.Equal(t, plainPos.Geom.Threshold, pos.Geom.Threshold)
	assert.Empty(t, cmp.Diff(plainPos.Index, pos.Index))
}

func TestGuidedGateRejectsDistantControl(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	values := testutil.Bimodal(rng, 1000, 0, 10, 0.5)
	tbl := testutil.TableX(t, "cd4", values)

	// The control threshold lands near 8.8, far above the whole panel's
	// mid-valley minimum.
	controlValues := unimodalValues(400, 8, 3)
	control := testutil.TableX(t, "cd4", controlValues)

	out, diag, err := guidedGate(t, tbl, control, nil).GateOneDimension(population.Overwrite)
	require.NoError(t, err)
	require.Len(t, diag.Warnings, 1)
	assert.Contains(t, diag.Warnings[0], "control ignored")

	pos := getPop(t, out, "pos")
	assert.Equal(t, MethodLocalMinimum, pos.Geom.Method)

	plainCtx, err := NewContext(testutil.TableX(t, "cd4", values), contextCollection(t), DefaultContextConfig("cd4"))
	require.NoError(t, err)
	plain, _, err := NewThresholdGate(plainCtx, testEstimator).GateOneDimension(population.Overwrite)
	require.NoError(t, err)

	plainPos := getPop(t, plain, "pos")
	assert.Equal(t, plainPos.Geom.Threshold, pos.Geom.Threshold)
	assert.Empty(t, cmp.Diff(plainPos.Index, pos.Index))
}

func TestGuidedGateUnimodalWholeUsesControl(t *testing.T) {
	t.Parallel()
	// A unimodal whole panel defers to the control outright: its threshold
	// and method are taken verbatim.
	tbl := testutil.TableX(t, "cd4", unimodalValues(400, 2, 7))
	controlValues := unimodalValues(400, 7, 9)
	control := testutil.TableX(t, "cd4", controlValues)

	out, diag, err := guidedGate(t, tbl, control, nil).GateOneDimension(population.Overwrite)
	require.NoError(t, err)
	assert.Empty(t, diag.Warnings)

	wantThreshold, wantMethod, err := testEstimator.Estimate(controlValues, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, MethodQuantile, wantMethod)

	pos := getPop(t, out, "pos")
	assert.Equal(t, wantThreshold, pos.Geom.Threshold)
	assert.Equal(t, MethodQuantile, pos.Geom.Method)
}

func TestGuidedGateEmptyControl(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		control *events.Table
	}{
		{name: "nil control", control: nil},
		{name: "empty control", control: events.New("cd4")},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tbl := bimodalTable(t, 11)
			out, diag, err := guidedGate(t, tbl, tc.control, nil).GateOneDimension(population.Overwrite)
			require.Error(t, err)
			assert.True(t, IsGatingError(err))
			assert.Contains(t, err.Error(), "control")
			assert.Nil(t, out)
			require.NotNil(t, diag)
		})
	}
}

func TestGuidedGateEmptyParent(t *testing.T) {
	t.Parallel()
	col := contextCollection(t)
	ctx, err := NewContext(events.New("cd4"), col, DefaultContextConfig("cd4"))
	require.NoError(t, err)

	// No control is consulted when there is nothing to gate.
	out, diag, err := NewGuidedThresholdGate(ctx, DefaultGuidedConfig(), nil, nil).GateOneDimension(population.Overwrite)
	require.NoError(t, err)
	assert.Same(t, col, out)
	assert.Empty(t, diag.Warnings)
}

func TestGuidedGateTwoDimensions(t *testing.T) {
	t.Parallel()
	tbl := quadrantTable(t, 5)
	xs, err := tbl.Column("cd4")
	require.NoError(t, err)
	ys, err := tbl.Column("cd8")
	require.NoError(t, err)
	controlX := testutil.TableXY(t, "cd4", "cd8", xs, ys)
	controlY := testutil.TableXY(t, "cd4", "cd8", xs, ys)

	col := quadrantCollection(t)
	cfg := DefaultContextConfig("cd4")
	cfg.Y = "cd8"
	ctx, err := NewContext(tbl, col, cfg)
	require.NoError(t, err)

	gate := NewGuidedThresholdGate(ctx, GuidedConfig{Estimator: testEstimator}, controlX, controlY)
	out, diag, err := gate.GateTwoDimensions()
	require.NoError(t, err)
	assert.Empty(t, diag.Warnings)

	assert.Empty(t, cmp.Diff(idRange(0, 249), getPop(t, out, "x-y-").Index))
	assert.Empty(t, cmp.Diff(idRange(250, 499), getPop(t, out, "x+y+").Index))
	assert.Empty(t, cmp.Diff(idRange(500, 749), getPop(t, out, "x+y-").Index))
	assert.Empty(t, cmp.Diff(idRange(750, 999), getPop(t, out, "x-y+").Index))

	gm := getPop(t, out, "x-y-").Geom
	assert.Equal(t, fmt.Sprintf("X: %s, Y: %s", MethodFMOGuided, MethodFMOGuided), gm.Method)
	assert.Greater(t, gm.ThresholdX, 2.0)
	assert.Less(t, gm.ThresholdX, 8.0)
	assert.Greater(t, gm.ThresholdY, 2.0)
	assert.Less(t, gm.ThresholdY, 8.0)
}

func TestGuidedGateTwoDimensionsRequiresControlY(t *testing.T) {
	t.Parallel()
	tbl := quadrantTable(t, 5)
	xs, err := tbl.Column("cd4")
	require.NoError(t, err)
	ys, err := tbl.Column("cd8")
	require.NoError(t, err)
	controlX := testutil.TableXY(t, "cd4", "cd8", xs, ys)

	cfg := DefaultContextConfig("cd4")
	cfg.Y = "cd8"
	ctx, err := NewContext(tbl, quadrantCollection(t), cfg)
	require.NoError(t, err)

	gate := NewGuidedThresholdGate(ctx, GuidedConfig{Estimator: testEstimator}, controlX, nil)
	out, _, err := gate.GateTwoDimensions()
	require.Error(t, err)
	assert.True(t, IsGatingError(err))
	assert.Contains(t, err.Error(), `"cd8"`)
	assert.Nil(t, out)
}
