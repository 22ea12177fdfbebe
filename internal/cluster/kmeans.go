package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/fabbondanza/cytogate/internal/geom"
)

const (
	// DefaultKMeansRestarts is the number of independent initializations;
	// the run with the lowest inertia wins.
	DefaultKMeansRestarts = 10
	// kmeansMaxIter bounds Lloyd iterations per restart.
	kmeansMaxIter = 300
)

// KMeansParams contains parameters for consensus centroid clustering.
type KMeansParams struct {
	K        int
	Restarts int // defaults to DefaultKMeansRestarts when <= 0
}

// KMeansResult holds the best clustering found across restarts.
type KMeansResult struct {
	Centroids []geom.Point
	Labels    []int
	Inertia   float64
}

// KMeans clusters points into K groups using k-means++ seeding and Lloyd
// iterations. All randomness is drawn from rng, so a fixed seed gives a
// reproducible result.
func KMeans(points []geom.Point, params KMeansParams, rng *rand.Rand) (KMeansResult, error) {
	if params.K <= 0 {
		return KMeansResult{}, fmt.Errorf("kmeans: k must be positive, got %d", params.K)
	}
	if len(points) < params.K {
		return KMeansResult{}, fmt.Errorf("kmeans: %d points cannot form %d clusters", len(points), params.K)
	}

	restarts := params.Restarts
	if restarts <= 0 {
		restarts = DefaultKMeansRestarts
	}

	best := KMeansResult{Inertia: math.Inf(1)}
	for r := 0; r < restarts; r++ {
		result := runKMeans(points, params.K, rng)
		if result.Inertia < best.Inertia {
			best = result
		}
	}
	return best, nil
}

func runKMeans(points []geom.Point, k int, rng *rand.Rand) KMeansResult {
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))
	dist2 := make([]float64, len(points))

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := assign(points, centroids, labels, dist2)

		// Recompute centroids as cluster means. Empty clusters steal the
		// point farthest from its assigned centroid.
		sums := make([]geom.Point, k)
		counts := make([]int, k)
		for i, p := range points {
			c := labels[i]
			sums[c].X += p.X
			sums[c].Y += p.Y
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				far := argmaxFloat(dist2)
				centroids[c] = points[far]
				labels[far] = c
				dist2[far] = 0
				changed = true
				continue
			}
			centroids[c] = geom.Point{
				X: sums[c].X / float64(counts[c]),
				Y: sums[c].Y / float64(counts[c]),
			}
		}

		if !changed {
			break
		}
	}

	// Final assignment against the converged centroids.
	assign(points, centroids, labels, dist2)
	inertia := 0.0
	for _, d := range dist2 {
		inertia += d
	}

	return KMeansResult{Centroids: centroids, Labels: labels, Inertia: inertia}
}

// assign maps every point to its nearest centroid, recording squared
// distances, and reports whether any assignment changed.
func assign(points []geom.Point, centroids []geom.Point, labels []int, dist2 []float64) bool {
	changed := false
	for i, p := range points {
		bestC := 0
		bestD := math.Inf(1)
		for c, ctr := range centroids {
			dx := p.X - ctr.X
			dy := p.Y - ctr.Y
			if d := dx*dx + dy*dy; d < bestD {
				bestD = d
				bestC = c
			}
		}
		if labels[i] != bestC {
			labels[i] = bestC
			changed = true
		}
		dist2[i] = bestD
	}
	return changed
}

// seedCentroids implements k-means++ initialization: the first centroid is
// uniform, each subsequent one is drawn proportionally to squared distance
// from the nearest chosen centroid.
func seedCentroids(points []geom.Point, k int, rng *rand.Rand) []geom.Point {
	centroids := make([]geom.Point, 0, k)
	centroids = append(centroids, points[rng.Intn(len(points))])

	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		last := centroids[len(centroids)-1]
		for i, p := range points {
			dx := p.X - last.X
			dy := p.Y - last.Y
			d := dx*dx + dy*dy
			if len(centroids) == 1 || d < d2[i] {
				d2[i] = d
			}
			total += d2[i]
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, points[rng.Intn(len(points))])
			continue
		}

		target := rng.Float64() * total
		cum := 0.0
		chosen := len(points) - 1
		for i, d := range d2 {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, points[chosen])
	}
	return centroids
}

func argmaxFloat(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
