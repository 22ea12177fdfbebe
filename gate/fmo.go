package gate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fabbondanza/cytogate/events"
	"github.com/fabbondanza/cytogate/population"
)

// GuidedConfig parameterises a control-guided threshold gate.
type GuidedConfig struct {
	// Estimator derives the per-sample thresholds.
	Estimator EstimatorConfig

	// ZScoreThreshold rejects the control threshold when its z-score
	// against the whole-panel minimum density region meets or exceeds
	// this value. Zero selects the default of 2.
	ZScoreThreshold float64
}

// DefaultGuidedConfig returns the standard guided-gate parameters.
func DefaultGuidedConfig() GuidedConfig {
	return GuidedConfig{
		Estimator:       DefaultEstimatorConfig(),
		ZScoreThreshold: 2,
	}
}

// GuidedThresholdGate is a threshold gate steered by control samples, one
// per gated dimension. A control is the same specimen stained with every
// marker except the gated one, so its threshold marks where genuine signal
// cannot exist; the gate reconciles it with the threshold estimated from
// the whole panel.
type GuidedThresholdGate struct {
	ctx      *Context
	cfg      GuidedConfig
	controlX *events.Table
	controlY *events.Table
}

// NewGuidedThresholdGate builds a guided gate over ctx. controlY may be nil
// when only 1D gating is intended.
func NewGuidedThresholdGate(ctx *Context, cfg GuidedConfig, controlX, controlY *events.Table) *GuidedThresholdGate {
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = 2
	}
	return &GuidedThresholdGate{ctx: ctx, cfg: cfg, controlX: controlX, controlY: controlY}
}

// GateOneDimension gates the parent on X at the control-reconciled
// threshold and partitions it between the children defined as "+" and "-".
func (g *GuidedThresholdGate) GateOneDimension(policy population.MergePolicy) (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	whole := estimationSample(g.ctx, g.ctx.Table(), diag)
	threshold, method, err := g.reconcile(whole, g.controlSample(g.controlX, diag), g.ctx.X(), diag)
	if err != nil {
		return nil, diag, err
	}
	if err := updateThreshold1D(g.ctx, threshold, method, policy); err != nil {
		return nil, diag, err
	}
	return g.ctx.Collection(), diag, nil
}

// GateTwoDimensions gates the parent into quadrants at control-reconciled
// thresholds on X and Y. The whole panel is sampled once and shared by both
// axes; each axis reconciles against its own control.
func (g *GuidedThresholdGate) GateTwoDimensions() (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	if g.ctx.Y() == "" {
		return nil, diag, Errorf("2D threshold gating requires a secondary dimension")
	}
	whole := estimationSample(g.ctx, g.ctx.Table(), diag)
	xThreshold, xMethod, err := g.reconcile(whole, g.controlSample(g.controlX, diag), g.ctx.X(), diag)
	if err != nil {
		return nil, diag, err
	}
	yThreshold, yMethod, err := g.reconcile(whole, g.controlSample(g.controlY, diag), g.ctx.Y(), diag)
	if err != nil {
		return nil, diag, err
	}
	method := fmt.Sprintf("X: %s, Y: %s", xMethod, yMethod)
	if err := updateQuadrants(g.ctx, xThreshold, yThreshold, method); err != nil {
		return nil, diag, err
	}
	return g.ctx.Collection(), diag, nil
}

func (g *GuidedThresholdGate) controlSample(control *events.Table, diag *Diagnostics) *events.Table {
	if control == nil {
		return nil
	}
	return estimationSample(g.ctx, control, diag)
}

// reconcile derives the threshold for dim from the whole-panel sample and
// its control. A unimodal whole panel defers to the control outright. A
// multimodal one accepts the control only when it lands near the minimum
// density region, in which case the two thresholds are averaged; otherwise
// the control is ignored with a warning.
func (g *GuidedThresholdGate) reconcile(whole, control *events.Table, dim string, diag *Diagnostics) (float64, string, error) {
	if control == nil || control.IsEmpty() {
		return 0, "", Errorf("no events in the control sample for %q", dim)
	}
	wholeThreshold, wholeMethod, err := estimateColumn(g.ctx, g.cfg.Estimator, whole, dim)
	if err != nil {
		return 0, "", err
	}
	controlThreshold, controlMethod, err := estimateColumn(g.ctx, g.cfg.Estimator, control, dim)
	if err != nil {
		return 0, "", err
	}
	switch wholeMethod {
	case MethodQuantile, MethodStdDev:
		return controlThreshold, controlMethod, nil
	case MethodLocalMinimum:
		dist := distuv.Normal{Mu: wholeThreshold, Sigma: 0.1}
		z := distuv.UnitNormal.Quantile(dist.CDF(controlThreshold))
		if math.Abs(z) >= g.cfg.ZScoreThreshold {
			diag.warnf("control threshold for %s sits far from the minimum density region of the whole panel (z-score %.2f, limit %g); control ignored, manual review of gating advised",
				dim, z, g.cfg.ZScoreThreshold)
			return wholeThreshold, wholeMethod, nil
		}
		return (wholeThreshold + controlThreshold) / 2, MethodFMOGuided, nil
	default:
		return 0, "", Errorf("unrecognised threshold method %q", wholeMethod)
	}
}
