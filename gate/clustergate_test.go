package gate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabbondanza/cytogate/events"
	"github.com/fabbondanza/cytogate/internal/geom"
	"github.com/fabbondanza/cytogate/internal/testutil"
	"github.com/fabbondanza/cytogate/population"
)

func xyTable(t *testing.T, pts []geom.Point) *events.Table {
	t.Helper()
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	return testutil.TableXY(t, "fsc", "ssc", xs, ys)
}

// twoBlobTable holds one blob at the origin in rows 0..299 and another at
// (10, 10) in rows 300..599.
func twoBlobTable(t *testing.T, seed int64) *events.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	xa, ya := testutil.Blob(rng, 300, 0, 0, 0.5)
	xb, yb := testutil.Blob(rng, 300, 10, 10, 0.5)
	return testutil.TableXY(t, "fsc", "ssc", append(xa, xb...), append(ya, yb...))
}

func twoPopCollection(t *testing.T, aWeight, bWeight float64, aTarget, bTarget []float64) *population.Collection {
	t.Helper()
	col, err := population.NewCollection(
		&population.Population{Name: "a", Target: aTarget, Weight: aWeight},
		&population.Population{Name: "b", Target: bTarget, Weight: bWeight},
	)
	require.NoError(t, err)
	return col
}

func clusterContext(t *testing.T, tbl *events.Table, col *population.Collection, frac float64) *Context {
	t.Helper()
	cfg := DefaultContextConfig("fsc")
	cfg.Y = "ssc"
	cfg.SampleFrac = frac
	ctx, err := NewContext(tbl, col, cfg)
	require.NoError(t, err)
	return ctx
}

// assertIndexWithin checks that ids form a reasonably complete subset of the
// id range [lo, hi].
func assertIndexWithin(t *testing.T, ids []int64, lo, hi int64, minLen int) {
	t.Helper()
	assert.GreaterOrEqual(t, len(ids), minLen)
	for _, id := range ids {
		require.GreaterOrEqual(t, id, lo)
		require.LessOrEqual(t, id, hi)
	}
}

func TestClusteringGateDBSCAN(t *testing.T) {
	t.Parallel()
	tbl := twoBlobTable(t, 31)
	col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
	gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
	require.NoError(t, err)

	out, diag, err := gate.DBSCAN(1, false, false)
	require.NoError(t, err)
	assert.Same(t, col, out)
	require.Len(t, diag.Warnings, 1)
	assert.Contains(t, diag.Warnings[0], "no sampling fraction")

	a, b := getPop(t, out, "a"), getPop(t, out, "b")
	assertIndexWithin(t, a.Index, 0, 299, 280)
	assertIndexWithin(t, b.Index, 300, 599, 280)

	for _, pop := range []*population.Population{a, b} {
		assert.Equal(t, population.ShapePolygon, pop.Geom.Shape)
		assert.Equal(t, "fsc", pop.Geom.X)
		assert.Equal(t, "ssc", pop.Geom.Y)
		assert.NotEmpty(t, pop.Geom.Vertices)
		assert.Equal(t, float64(len(pop.Index))/600, pop.PropOfParent)
	}
}

func TestClusteringGateCollision(t *testing.T) {
	t.Parallel()

	// Both targets sit inside the origin blob, so both populations claim the
	// same cluster; the blob at (10, 10) goes unclaimed.
	run := func(t *testing.T, aWeight, bWeight float64) (*population.Collection, *Diagnostics) {
		t.Helper()
		tbl := twoBlobTable(t, 31)
		col := twoPopCollection(t, aWeight, bWeight, []float64{0, 0}, []float64{0.3, 0.3})
		gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
		require.NoError(t, err)
		out, diag, err := gate.DBSCAN(1, false, false)
		require.NoError(t, err)
		return out, diag
	}

	t.Run("higher weight wins", func(t *testing.T) {
		t.Parallel()
		out, diag := run(t, 1, 5)
		require.Len(t, diag.Warnings, 3)
		assert.Contains(t, diag.Warnings[0], "no sampling fraction")
		assert.Equal(t, "expected 2 populations but found 1", diag.Warnings[1])
		assert.Equal(t, "populations a, b assigned to the same cluster 0; prioritising b based on weighting",
			diag.Warnings[2])

		b := getPop(t, out, "b")
		assertIndexWithin(t, b.Index, 0, 299, 280)
		assert.NotEmpty(t, b.Geom.Vertices)

		// The displaced population is left untouched.
		a := getPop(t, out, "a")
		assert.Empty(t, a.Index)
		assert.Equal(t, population.Geom{}, a.Geom)
		assert.Zero(t, a.PropOfParent)
	})

	t.Run("equal weights prefer declaration order", func(t *testing.T) {
		t.Parallel()
		out, diag := run(t, 1, 1)
		require.Len(t, diag.Warnings, 3)
		assert.Equal(t, "populations a, b assigned to the same cluster 0; prioritising a based on weighting",
			diag.Warnings[2])

		a := getPop(t, out, "a")
		assertIndexWithin(t, a.Index, 0, 299, 280)
		b := getPop(t, out, "b")
		assert.Empty(t, b.Index)
	})
}

func TestClusteringGatePopulationNotFound(t *testing.T) {
	t.Parallel()
	// Ten isolated events lead the table so the neighbourhood around the
	// first event is pure noise; a target outside every hull then resolves to
	// a missing population instead of the nearest centroid.
	var xs, ys []float64
	for i := 0; i < 10; i++ {
		xs = append(xs, 100+2*float64(i))
		ys = append(ys, -100)
	}
	rng := rand.New(rand.NewSource(37))
	xa, ya := testutil.Blob(rng, 300, 0, 0, 0.5)
	xb, yb := testutil.Blob(rng, 300, 10, 10, 0.5)
	tbl := testutil.TableXY(t, "fsc", "ssc", append(xs, append(xa, xb...)...), append(ys, append(ya, yb...)...))

	col, err := population.NewCollection(
		&population.Population{Name: "a", Target: []float64{0, 0}, Weight: 1},
		&population.Population{Name: "ghost", Target: []float64{50, 50}, Weight: 1},
	)
	require.NoError(t, err)

	gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
	require.NoError(t, err)
	out, diag, err := gate.DBSCAN(1, false, false)
	require.NoError(t, err)

	require.Len(t, diag.Warnings, 2)
	assert.Contains(t, diag.Warnings[0], "no sampling fraction")
	assert.Equal(t, "population ghost assigned to noise (population not found)", diag.Warnings[1])

	ghost := getPop(t, out, "ghost")
	assert.Empty(t, ghost.Index)
	assert.Empty(t, ghost.Geom.Vertices)
	assert.Equal(t, population.ShapePolygon, ghost.Geom.Shape)
	assert.Zero(t, ghost.PropOfParent)

	assertIndexWithin(t, getPop(t, out, "a").Index, 10, 309, 280)
}

func TestClusteringGateAllNoiseFatal(t *testing.T) {
	t.Parallel()
	pts := make([]geom.Point, 30)
	for i := range pts {
		pts[i] = geom.Point{X: float64(i) * 100, Y: float64(i) * 100}
	}
	col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
	gate, err := NewClusteringGate(clusterContext(t, xyTable(t, pts), col, 0), DefaultClusteringConfig())
	require.NoError(t, err)

	out, diag, err := gate.DBSCAN(1, false, false)
	require.Error(t, err)
	assert.True(t, IsGatingError(err))
	assert.Contains(t, err.Error(), "all labels are noise")
	assert.Nil(t, out)

	// Warnings accrued before the failure survive on the diagnostics.
	require.Len(t, diag.Warnings, 1)
	assert.Contains(t, diag.Warnings[0], "no sampling fraction")
}

func TestClusteringGateChunked(t *testing.T) {
	t.Parallel()
	pts := interleaved(400, [][2]float64{{0, 0}, {10, 10}}, 0.5, 33)
	col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
	cfg := DefaultClusteringConfig()
	cfg.ChunkSize = 200
	gate, err := NewClusteringGate(clusterContext(t, xyTable(t, pts), col, 0), cfg)
	require.NoError(t, err)

	out, diag, err := gate.DBSCAN(1, false, true)
	require.NoError(t, err)
	for _, w := range diag.Warnings {
		assert.NotContains(t, w, "no sampling fraction")
	}

	a, b := getPop(t, out, "a"), getPop(t, out, "b")
	assert.GreaterOrEqual(t, len(a.Index), 380)
	assert.GreaterOrEqual(t, len(b.Index), 380)
	for _, id := range a.Index {
		require.Zero(t, id%2, "origin blob holds the even rows, got id %d", id)
	}
	for _, id := range b.Index {
		require.NotZero(t, id%2, "high blob holds the odd rows, got id %d", id)
	}
	assert.NotEmpty(t, a.Geom.Vertices)
	assert.NotEmpty(t, b.Geom.Vertices)
	assert.Equal(t, float64(len(a.Index))/800, a.PropOfParent)
}

func TestClusteringGateHDBSCAN(t *testing.T) {
	t.Parallel()

	t.Run("full fit", func(t *testing.T) {
		t.Parallel()
		tbl := twoBlobTable(t, 35)
		col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
		gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
		require.NoError(t, err)

		out, diag, err := gate.HDBSCAN(0)
		require.NoError(t, err)
		assert.Empty(t, diag.Warnings)

		a, b := getPop(t, out, "a"), getPop(t, out, "b")
		assertIndexWithin(t, a.Index, 0, 299, 250)
		assertIndexWithin(t, b.Index, 300, 599, 250)
		assert.NotEmpty(t, a.Geom.Vertices)
		assert.NotEmpty(t, b.Geom.Vertices)
	})

	t.Run("sampled fit", func(t *testing.T) {
		t.Parallel()
		tbl := twoBlobTable(t, 35)
		col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
		gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0.5), DefaultClusteringConfig())
		require.NoError(t, err)

		out, diag, err := gate.HDBSCAN(0)
		require.NoError(t, err)
		assert.Empty(t, diag.Warnings)

		assertIndexWithin(t, getPop(t, out, "a").Index, 0, 299, 250)
		assertIndexWithin(t, getPop(t, out, "b").Index, 300, 599, 250)
	})

	t.Run("inclusion threshold relabels everything", func(t *testing.T) {
		t.Parallel()
		tbl := twoBlobTable(t, 35)
		col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
		gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
		require.NoError(t, err)

		out, _, err := gate.HDBSCAN(1.1)
		require.Error(t, err)
		assert.True(t, IsGatingError(err))
		assert.Contains(t, err.Error(), "all labels are noise")
		assert.Nil(t, out)
	})
}

func TestClusteringGateEmptyParent(t *testing.T) {
	t.Parallel()
	col := twoPopCollection(t, 1, 1, []float64{0, 0}, []float64{10, 10})
	gate, err := NewClusteringGate(clusterContext(t, events.New("fsc", "ssc"), col, 0), DefaultClusteringConfig())
	require.NoError(t, err)

	out, diag, err := gate.DBSCAN(1, false, false)
	require.NoError(t, err)
	assert.Same(t, col, out)
	assert.Empty(t, diag.Warnings)

	out, diag, err = gate.HDBSCAN(0)
	require.NoError(t, err)
	assert.Same(t, col, out)
	assert.Empty(t, diag.Warnings)
}

func TestClusteringGateRequiresY(t *testing.T) {
	t.Parallel()
	tbl := testutil.TableX(t, "fsc", []float64{1, 2, 3})
	ctx, err := NewContext(tbl, contextCollection(t), DefaultContextConfig("fsc"))
	require.NoError(t, err)

	gate, err := NewClusteringGate(ctx, DefaultClusteringConfig())
	require.Error(t, err)
	assert.True(t, IsGatingError(err))
	assert.Contains(t, err.Error(), "secondary dimension")
	assert.Nil(t, gate)
}

func TestClusteringGateTargetMissing(t *testing.T) {
	t.Parallel()
	tbl := twoBlobTable(t, 31)
	col, err := population.NewCollection(
		&population.Population{Name: "a"},
		&population.Population{Name: "b", Target: []float64{10, 10}},
	)
	require.NoError(t, err)
	gate, err := NewClusteringGate(clusterContext(t, tbl, col, 0), DefaultClusteringConfig())
	require.NoError(t, err)

	out, _, err := gate.DBSCAN(1, false, false)
	require.Error(t, err)
	assert.True(t, IsGatingError(err))
	assert.Contains(t, err.Error(), "target coordinate")
	assert.Contains(t, err.Error(), `"a"`)
	assert.Nil(t, out)
}
