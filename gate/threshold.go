package gate

import (
	"fmt"

	"github.com/fabbondanza/cytogate/events"
	"github.com/fabbondanza/cytogate/population"
)

// estimateCap bounds the number of events fed to density estimation.
const estimateCap = 5000

// quadrantDefs lists the sign definitions a 2D threshold gate requires.
var quadrantDefs = [4]string{"--", "++", "-+", "+-"}

// ThresholdGate splits the parent into child populations at estimated
// density thresholds: a single threshold on X for 1D gates, one threshold
// per axis for 2D quadrant gates.
type ThresholdGate struct {
	ctx *Context
	cfg EstimatorConfig
}

// NewThresholdGate builds a threshold gate over ctx.
func NewThresholdGate(ctx *Context, cfg EstimatorConfig) *ThresholdGate {
	return &ThresholdGate{ctx: ctx, cfg: cfg}
}

// GateOneDimension estimates a threshold on X and partitions the parent
// between the child populations defined as "+" (above) and "-" (below).
// Events sitting exactly on the threshold fall in neither child. policy
// controls whether the fresh indices overwrite or merge with existing ones.
func (g *ThresholdGate) GateOneDimension(policy population.MergePolicy) (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	tbl := estimationSample(g.ctx, g.ctx.Table(), diag)
	threshold, method, err := estimateColumn(g.ctx, g.cfg, tbl, g.ctx.X())
	if err != nil {
		return nil, diag, err
	}
	if err := updateThreshold1D(g.ctx, threshold, method, policy); err != nil {
		return nil, diag, err
	}
	return g.ctx.Collection(), diag, nil
}

// GateTwoDimensions estimates independent thresholds on X and Y from one
// shared sample and assigns the four quadrants to the child populations
// defined as "--", "-+", "+-" and "++". Quadrant indices always merge with
// existing ones.
func (g *ThresholdGate) GateTwoDimensions() (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	if g.ctx.Y() == "" {
		return nil, diag, Errorf("2D threshold gating requires a secondary dimension")
	}
	tbl := estimationSample(g.ctx, g.ctx.Table(), diag)
	xThreshold, xMethod, err := estimateColumn(g.ctx, g.cfg, tbl, g.ctx.X())
	if err != nil {
		return nil, diag, err
	}
	yThreshold, yMethod, err := estimateColumn(g.ctx, g.cfg, tbl, g.ctx.Y())
	if err != nil {
		return nil, diag, err
	}
	method := fmt.Sprintf("X: %s, Y: %s", xMethod, yMethod)
	if err := updateQuadrants(g.ctx, xThreshold, yThreshold, method); err != nil {
		return nil, diag, err
	}
	return g.ctx.Collection(), diag, nil
}

// estimationSample returns the table densities should be estimated on: the
// configured sample of tbl, or tbl itself when sampling is disabled.
func estimationSample(ctx *Context, tbl *events.Table, diag *Diagnostics) *events.Table {
	if s := ctx.Sampling(tbl, estimateCap, diag); s != nil {
		return s
	}
	return tbl
}

// estimateColumn runs the threshold estimator over one dimension of tbl.
func estimateColumn(ctx *Context, cfg EstimatorConfig, tbl *events.Table, dim string) (float64, string, error) {
	values, err := tbl.Column(dim)
	if err != nil {
		return 0, "", err
	}
	return cfg.Estimate(values, ctx.rng)
}

// updateThreshold1D writes the 1D gate result into the collection: geometry
// first on both children, then the strict >/< partition of the full parent.
func updateThreshold1D(ctx *Context, threshold float64, method string, policy population.MergePolicy) error {
	col := ctx.Collection()
	pos, okPos := col.FetchByDefinition("+")
	neg, okNeg := col.FetchByDefinition("-")
	if !okPos || !okNeg {
		return Errorf("1D threshold gate requires child populations defined as + and -")
	}
	values, err := ctx.Table().Column(ctx.X())
	if err != nil {
		return err
	}
	var above, below []int64
	for row, v := range values {
		switch {
		case v > threshold:
			above = append(above, ctx.Table().ID(row))
		case v < threshold:
			below = append(below, ctx.Table().ID(row))
		}
	}
	gm := population.Geom{
		Shape:     population.ShapeThreshold1D,
		X:         ctx.X(),
		Y:         ctx.Y(),
		Method:    method,
		Threshold: threshold,
	}
	for _, name := range []string{pos, neg} {
		if err := col.UpdateGeom(name, gm); err != nil {
			return err
		}
	}
	if err := col.UpdateIndex(pos, above, policy); err != nil {
		return err
	}
	return col.UpdateIndex(neg, below, policy)
}

// updateQuadrants writes the 2D gate result into the collection. Events on
// either threshold line belong to no quadrant.
func updateQuadrants(ctx *Context, xThreshold, yThreshold float64, method string) error {
	col := ctx.Collection()
	names := make(map[string]string, len(quadrantDefs))
	for _, def := range quadrantDefs {
		name, ok := col.FetchByDefinition(def)
		if !ok {
			return Errorf("2D threshold gate requires child populations defined as --, -+, +- and ++")
		}
		names[def] = name
	}

	xs, err := ctx.Table().Column(ctx.X())
	if err != nil {
		return err
	}
	ys, err := ctx.Table().Column(ctx.Y())
	if err != nil {
		return err
	}
	ids := make(map[string][]int64, len(quadrantDefs))
	for row := range xs {
		var def string
		switch {
		case xs[row] > xThreshold && ys[row] > yThreshold:
			def = "++"
		case xs[row] > xThreshold && ys[row] < yThreshold:
			def = "+-"
		case xs[row] < xThreshold && ys[row] > yThreshold:
			def = "-+"
		case xs[row] < xThreshold && ys[row] < yThreshold:
			def = "--"
		default:
			// exactly on a threshold line
			continue
		}
		ids[def] = append(ids[def], ctx.Table().ID(row))
	}

	gm := population.Geom{
		Shape:      population.ShapeThreshold2D,
		X:          ctx.X(),
		Y:          ctx.Y(),
		Method:     method,
		ThresholdX: xThreshold,
		ThresholdY: yThreshold,
	}
	for _, def := range quadrantDefs {
		if err := col.UpdateIndex(names[def], ids[def], population.Merge); err != nil {
			return err
		}
		if err := col.UpdateGeom(names[def], gm); err != nil {
			return err
		}
	}
	return nil
}
