// Package gate implements the gating strategies that split an event table
// into child populations: density threshold gates (1D and 2D), FMO-guided
// threshold gates, and clustering gates built on DBSCAN, chunked consensus
// clustering and HDBSCAN. Every operation returns the updated population
// collection together with a Diagnostics value holding the run's warnings;
// fatal conditions are reported as GatingError.
package gate

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/fabbondanza/cytogate/events"
	"github.com/fabbondanza/cytogate/internal/downsample"
	"github.com/fabbondanza/cytogate/internal/geom"
	"github.com/fabbondanza/cytogate/population"
)

// Downsampling schemes accepted by ContextConfig.Downsample.
const (
	DownsampleUniform  = "uniform"
	DownsampleDensity  = "density"
	DownsampleFaithful = "faithful"
)

const defaultSeed = 42

// ContextConfig describes the frame shared by every gate: which dimensions
// to gate on and how to reduce the parent before expensive estimation.
type ContextConfig struct {
	// X is the primary gating dimension. Required.
	X string

	// Y is the secondary dimension. Required for 2D threshold gates and
	// all clustering gates; 1D gates ignore it.
	Y string

	// SampleFrac is the fraction of the parent drawn before estimation.
	// Zero disables sampling and every operation sees the full table.
	SampleFrac float64

	// Downsample selects the sampling scheme: DownsampleUniform,
	// DownsampleDensity or DownsampleFaithful. Empty means uniform.
	Downsample string

	// Density parameterises density-dependent sampling. A zero value is
	// replaced with downsample.DefaultDensityConfig.
	Density downsample.DensityConfig

	// FaithfulRadius is the neighbourhood radius of faithful sampling.
	FaithfulRadius float64

	// Seed fixes the random source so repeated runs draw identical
	// samples. Zero selects the default seed.
	Seed int64
}

// DefaultContextConfig returns a context configuration gating on x with
// sampling disabled.
func DefaultContextConfig(x string) ContextConfig {
	return ContextConfig{
		X:              x,
		Downsample:     DownsampleUniform,
		Density:        downsample.DefaultDensityConfig(),
		FaithfulRadius: 0.1,
		Seed:           defaultSeed,
	}
}

// Context binds an event table to the population collection being gated.
// It owns the run's random source, so gates sharing a context draw from one
// reproducible stream.
type Context struct {
	table      *events.Table
	collection *population.Collection
	cfg        ContextConfig
	rng        *rand.Rand
}

// NewContext validates cfg against the table and returns a ready context.
func NewContext(table *events.Table, collection *population.Collection, cfg ContextConfig) (*Context, error) {
	if table == nil {
		return nil, fmt.Errorf("gating context requires an event table")
	}
	if collection == nil {
		return nil, fmt.Errorf("gating context requires a population collection")
	}
	if cfg.X == "" {
		return nil, fmt.Errorf("gating context requires a primary dimension")
	}
	if !table.HasDim(cfg.X) {
		return nil, fmt.Errorf("dimension %q not present in event table", cfg.X)
	}
	if cfg.Y != "" && !table.HasDim(cfg.Y) {
		return nil, fmt.Errorf("dimension %q not present in event table", cfg.Y)
	}
	if cfg.SampleFrac < 0 || cfg.SampleFrac > 1 {
		return nil, fmt.Errorf("sample fraction must be in [0, 1], got %g", cfg.SampleFrac)
	}
	switch cfg.Downsample {
	case "":
		cfg.Downsample = DownsampleUniform
	case DownsampleUniform, DownsampleDensity, DownsampleFaithful:
	default:
		return nil, fmt.Errorf("unknown downsampling scheme %q", cfg.Downsample)
	}
	if cfg.Downsample == DownsampleFaithful && cfg.FaithfulRadius <= 0 {
		return nil, fmt.Errorf("faithful sampling requires a positive radius, got %g", cfg.FaithfulRadius)
	}
	if cfg.Density == (downsample.DensityConfig{}) {
		cfg.Density = downsample.DefaultDensityConfig()
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultSeed
	}
	return &Context{
		table:      table,
		collection: collection,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Table returns the parent event table.
func (c *Context) Table() *events.Table { return c.table }

// Collection returns the population collection being gated.
func (c *Context) Collection() *population.Collection { return c.collection }

// X returns the primary gating dimension.
func (c *Context) X() string { return c.cfg.X }

// Y returns the secondary gating dimension, empty for 1D contexts.
func (c *Context) Y() string { return c.cfg.Y }

// EmptyParent reports whether the parent table holds no events.
func (c *Context) EmptyParent() bool { return c.table.IsEmpty() }

// Sampling draws the configured fraction of tbl, capped at maxN rows when
// maxN is positive. It returns nil when no sampling fraction is configured;
// callers then operate on the full table. Sampling never fails: schemes that
// cannot run on the given table record a warning and fall back to uniform.
func (c *Context) Sampling(tbl *events.Table, maxN int, diag *Diagnostics) *events.Table {
	if c.cfg.SampleFrac <= 0 {
		return nil
	}
	n := tbl.Len()
	target := int(c.cfg.SampleFrac * float64(n))
	if maxN > 0 && target > maxN {
		target = maxN
	}
	if target >= n {
		return tbl
	}
	if target < 1 {
		diag.warnf("sampling fraction %g of %d events leaves nothing to draw; using all events",
			c.cfg.SampleFrac, n)
		return tbl
	}
	switch c.cfg.Downsample {
	case DownsampleDensity:
		return c.densitySample(tbl, target, diag)
	case DownsampleFaithful:
		return c.faithfulSample(tbl, target, diag)
	default:
		return tbl.SampleN(target, c.rng)
	}
}

func (c *Context) densitySample(tbl *events.Table, target int, diag *Diagnostics) *events.Table {
	pts, err := c.points(tbl)
	if err != nil {
		diag.warnf("density-dependent sampling unavailable (%v); falling back to uniform", err)
		return tbl.SampleN(target, c.rng)
	}
	positions, ok := downsample.DensityDependent(pts, target, c.cfg.Density, c.rng)
	if !ok {
		diag.warnf("density-dependent sampling found no events above the outlier density; falling back to uniform")
		return tbl.SampleN(target, c.rng)
	}
	if len(positions) < target {
		diag.warnf("density-dependent sampling drew %d of %d requested events", len(positions), target)
	}
	return tbl.Select(positions)
}

func (c *Context) faithfulSample(tbl *events.Table, target int, diag *Diagnostics) *events.Table {
	pts, err := c.points(tbl)
	if err != nil {
		diag.warnf("faithful sampling unavailable (%v); falling back to uniform", err)
		return tbl.SampleN(target, c.rng)
	}
	positions := downsample.Faithful(pts, c.cfg.FaithfulRadius, c.rng)
	if len(positions) == 0 {
		diag.warnf("faithful sampling registered no neighbourhoods; falling back to uniform")
		return tbl.SampleN(target, c.rng)
	}
	if len(positions) > target {
		diag.warnf("faithful sampling kept %d events, above the requested %d; reducing uniformly",
			len(positions), target)
		c.rng.Shuffle(len(positions), func(i, j int) {
			positions[i], positions[j] = positions[j], positions[i]
		})
		positions = positions[:target]
		sort.Ints(positions)
	}
	return tbl.Select(positions)
}

// points assembles the (x, y) coordinates of every row in tbl. It fails
// when the context has no secondary dimension.
func (c *Context) points(tbl *events.Table) ([]geom.Point, error) {
	if c.cfg.Y == "" {
		return nil, fmt.Errorf("no y dimension configured")
	}
	xs, err := tbl.Column(c.cfg.X)
	if err != nil {
		return nil, err
	}
	ys, err := tbl.Column(c.cfg.Y)
	if err != nil {
		return nil, err
	}
	pts := make([]geom.Point, len(xs))
	for i := range xs {
		pts[i] = geom.Point{X: xs[i], Y: ys[i]}
	}
	return pts, nil
}
