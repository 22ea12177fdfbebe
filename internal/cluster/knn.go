package cluster

import (
	"fmt"
	"sort"

	"github.com/fabbondanza/cytogate/internal/geom"
)

// KNNClassifier extends cluster labels from a fitted sample to arbitrary
// events using distance-weighted votes among the K nearest fitted points.
type KNNClassifier struct {
	K int

	index  *NeighborIndex
	labels []int
}

// NewKNNClassifier fits a classifier on points with known labels.
func NewKNNClassifier(points []geom.Point, labels []int, k int) (*KNNClassifier, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("knn: no training points")
	}
	if len(points) != len(labels) {
		return nil, fmt.Errorf("knn: %d points but %d labels", len(points), len(labels))
	}
	if k <= 0 {
		return nil, fmt.Errorf("knn: k must be positive, got %d", k)
	}

	return &KNNClassifier{
		K:      k,
		index:  NewNeighborIndex(points),
		labels: labels,
	}, nil
}

// Predict returns a label for each query point. Queries are fanned out
// across available CPUs; results land in per-query slots so output order is
// independent of scheduling.
func (c *KNNClassifier) Predict(points []geom.Point) []int {
	if len(points) == 0 {
		return nil
	}

	out := make([]int, len(points))
	ParallelFor(len(points), func(i int) {
		out[i] = c.predictOne(points[i])
	})
	return out
}

// predictOne votes among the K nearest fitted points. A fitted point at zero
// distance decides the query outright; otherwise votes are weighted by
// inverse distance. Ties resolve to the smallest label.
func (c *KNNClassifier) predictOne(q geom.Point) int {
	idxs, dists := c.index.KNearest(q, c.K)

	// Exact matches dominate: vote only among zero-distance neighbors.
	var exact []int
	for i, d := range dists {
		if d == 0 {
			exact = append(exact, c.labels[idxs[i]])
		}
	}
	if len(exact) > 0 {
		counts := make(map[int]int, len(exact))
		for _, label := range exact {
			counts[label]++
		}
		return argmaxVote(counts)
	}

	votes := make(map[int]float64, len(idxs))
	for i, idx := range idxs {
		votes[c.labels[idx]] += 1 / dists[i]
	}

	labels := make([]int, 0, len(votes))
	for label := range votes {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	best := labels[0]
	bestWeight := votes[best]
	for _, label := range labels[1:] {
		if w := votes[label]; w > bestWeight {
			best = label
			bestWeight = w
		}
	}
	return best
}

// argmaxVote returns the label with the highest count, smallest label first
// on ties.
func argmaxVote(counts map[int]int) int {
	labels := make([]int, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	best := labels[0]
	bestCount := counts[best]
	for _, label := range labels[1:] {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}
