// Package downsample reduces large event sets before expensive estimation.
// Beyond plain uniform sampling (which events.Table provides directly) it
// implements two published schemes: SPADE-style density-dependent sampling,
// which up-weights sparse regions so rare populations survive the cut, and
// faithful down-sampling, which registers radius-h neighborhoods until every
// event is represented.
package downsample

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fabbondanza/cytogate/internal/cluster"
	"github.com/fabbondanza/cytogate/internal/geom"
)

// DensityConfig carries the knobs of density-dependent sampling.
type DensityConfig struct {
	Alpha       float64 // multiplier on the median 2-NN distance giving the density radius
	ProbeN      int     // events probed to estimate the 2-NN distance
	OutlierDens float64 // percentile (0-100); density at or below it weighs zero
	TargetDens  float64 // percentile (0-100); density up to it weighs one, above it target/local
}

// DefaultDensityConfig returns the parameters of the original SPADE scheme.
func DefaultDensityConfig() DensityConfig {
	return DensityConfig{
		Alpha:       5,
		ProbeN:      2000,
		OutlierDens: 1,
		TargetDens:  5,
	}
}

// DensityDependent picks n row positions with probability shaped by local
// density: the sparsest OutlierDens percent weigh zero (noise), densities up
// to the TargetDens percentile weigh one, and denser regions are damped by
// target/local. Positions are returned ascending. ok is false when every
// weight is zero, in which case the caller should fall back to uniform
// sampling.
func DensityDependent(points []geom.Point, n int, cfg DensityConfig, rng *rand.Rand) (positions []int, ok bool) {
	if len(points) == 0 || n <= 0 {
		return nil, true
	}

	radius := densityRadius(points, cfg, rng)
	index := cluster.NewNeighborIndex(points)

	local := make([]float64, len(points))
	cluster.ParallelFor(len(points), func(i int) {
		local[i] = float64(index.CountWithin(points[i], radius))
	})

	sorted := append([]float64(nil), local...)
	sort.Float64s(sorted)
	outlier := stat.Quantile(cfg.OutlierDens/100, stat.Empirical, sorted, nil)
	target := stat.Quantile(cfg.TargetDens/100, stat.Empirical, sorted, nil)

	weights := make([]float64, len(points))
	total := 0.0
	for i, d := range local {
		switch {
		case d <= outlier:
			weights[i] = 0
		case d <= target:
			weights[i] = 1
		default:
			weights[i] = target / d
		}
		total += weights[i]
	}
	if total == 0 {
		return nil, false
	}
	return weightedSample(weights, n, rng), true
}

// densityRadius estimates the neighborhood radius as alpha times the median
// distance of a probe sample to its second-nearest neighbor.
func densityRadius(points []geom.Point, cfg DensityConfig, rng *rand.Rand) float64 {
	probeN := cfg.ProbeN
	if probeN <= 0 || probeN > len(points) {
		probeN = len(points)
	}
	probe := make([]geom.Point, probeN)
	for i, pos := range rng.Perm(len(points))[:probeN] {
		probe[i] = points[pos]
	}

	index := cluster.NewNeighborIndex(probe)
	dists := make([]float64, probeN)
	cluster.ParallelFor(probeN, func(i int) {
		_, d := index.KNearest(probe[i], 2)
		dists[i] = d[len(d)-1]
	})
	return geom.Median(dists) * cfg.Alpha
}

// weightedSample draws n positions without replacement, proportional to
// weights, using the exponential-keys method: each position gets the key
// u^(1/w) and the n largest keys win. Zero-weight positions never win.
func weightedSample(weights []float64, n int, rng *rand.Rand) []int {
	type keyed struct {
		pos int
		key float64
	}
	candidates := make([]keyed, 0, len(weights))
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		candidates = append(candidates, keyed{pos: i, key: math.Pow(rng.Float64(), 1/w)})
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].key != candidates[j].key {
			return candidates[i].key > candidates[j].key
		}
		return candidates[i].pos < candidates[j].pos
	})

	positions := make([]int, n)
	for i := 0; i < n; i++ {
		positions[i] = candidates[i].pos
	}
	sort.Ints(positions)
	return positions
}

// Faithful down-samples by neighborhood registration: random unregistered
// seeds register everything within radius h of themselves until no event is
// left unregistered, and the union of registered neighborhoods (the seeds
// themselves excluded) is returned as ascending positions.
func Faithful(points []geom.Point, h float64, rng *rand.Rand) []int {
	n := len(points)
	if n == 0 {
		return nil
	}

	index := cluster.NewNeighborIndex(points)
	registered := make([]bool, n)
	member := make([]bool, n)

	for {
		var open []int
		for i, r := range registered {
			if !r {
				open = append(open, i)
			}
		}
		if len(open) == 0 {
			break
		}
		seed := open[rng.Intn(len(open))]
		registered[seed] = true
		for _, j := range index.Within(points[seed], h) {
			if j == seed {
				continue
			}
			registered[j] = true
			member[j] = true
		}
	}

	var positions []int
	for i, m := range member {
		if m {
			positions = append(positions, i)
		}
	}
	return positions
}
