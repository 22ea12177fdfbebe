package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/fabbondanza/cytogate/internal/geom"
)

// eventPoint is a 2D event coordinate tagged with its row index so neighbor
// queries can recover per-point metadata such as cluster labels.
type eventPoint struct {
	x, y float64
	idx  int
}

var (
	_ kdtree.Comparable = eventPoint{}
	_ kdtree.Interface  = eventPoints{}
)

func (p eventPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(eventPoint)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p eventPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance, following the kdtree
// package convention.
func (p eventPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(eventPoint)
	dx := p.x - q.x
	dy := p.y - q.y
	return dx*dx + dy*dy
}

// eventPoints satisfies kdtree.Interface for tree construction.
type eventPoints []eventPoint

func (p eventPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p eventPoints) Len() int                      { return len(p) }
func (p eventPoints) Pivot(d kdtree.Dim) int {
	return eventPlane{points: p, Dim: d}.Pivot()
}
func (p eventPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// eventPlane allows eventPoints to be pivoted on a dimension.
type eventPlane struct {
	points eventPoints
	kdtree.Dim
}

func (p eventPlane) Len() int { return len(p.points) }
func (p eventPlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].x < p.points[j].x
	}
	return p.points[i].y < p.points[j].y
}
func (p eventPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p eventPlane) Slice(start, end int) kdtree.SortSlicer {
	return eventPlane{points: p.points[start:end], Dim: p.Dim}
}
func (p eventPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// NeighborIndex answers nearest-neighbor and radius queries over a fixed
// point set. All returned distances are Euclidean.
type NeighborIndex struct {
	tree *kdtree.Tree
	n    int
}

// NewNeighborIndex builds a KD-tree over points.
func NewNeighborIndex(points []geom.Point) *NeighborIndex {
	ni := &NeighborIndex{n: len(points)}
	if len(points) == 0 {
		return ni
	}
	pts := make(eventPoints, len(points))
	for i, p := range points {
		pts[i] = eventPoint{x: p.X, y: p.Y, idx: i}
	}
	ni.tree = kdtree.New(pts, false)
	return ni
}

// Len returns the number of indexed points.
func (ni *NeighborIndex) Len() int { return ni.n }

// Nearest returns the index of the indexed point closest to q and the
// distance to it.
func (ni *NeighborIndex) Nearest(q geom.Point) (int, float64) {
	if ni.n == 0 {
		return -1, math.Inf(1)
	}
	c, d := ni.tree.Nearest(eventPoint{x: q.X, y: q.Y, idx: -1})
	return c.(eventPoint).idx, math.Sqrt(d)
}

// KNearest returns the indices and distances of the k indexed points closest
// to q, ordered by increasing distance with index order breaking ties. If
// fewer than k points are indexed, all of them are returned.
func (ni *NeighborIndex) KNearest(q geom.Point, k int) ([]int, []float64) {
	if k <= 0 || ni.n == 0 {
		return nil, nil
	}
	if k > ni.n {
		k = ni.n
	}

	keep := kdtree.NewNKeeper(k)
	ni.tree.NearestSet(keep, eventPoint{x: q.X, y: q.Y, idx: -1})

	type neighbor struct {
		idx  int
		dist float64
	}
	found := make([]neighbor, 0, k)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue // unfilled keeper slot
		}
		found = append(found, neighbor{c.Comparable.(eventPoint).idx, math.Sqrt(c.Dist)})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].idx < found[j].idx
	})

	idxs := make([]int, len(found))
	dists := make([]float64, len(found))
	for i, nb := range found {
		idxs[i] = nb.idx
		dists[i] = nb.dist
	}
	return idxs, dists
}

// CountWithin returns the number of indexed points at distance <= r from q.
func (ni *NeighborIndex) CountWithin(q geom.Point, r float64) int {
	if ni.n == 0 || r < 0 {
		return 0
	}
	keep := kdtree.NewDistKeeper(r * r)
	ni.tree.NearestSet(keep, eventPoint{x: q.X, y: q.Y, idx: -1})

	count := 0
	for _, c := range keep.Heap {
		if c.Comparable != nil {
			count++
		}
	}
	return count
}

// Within returns the indices of all indexed points at distance <= r from q,
// sorted ascending.
func (ni *NeighborIndex) Within(q geom.Point, r float64) []int {
	if ni.n == 0 || r < 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	ni.tree.NearestSet(keep, eventPoint{x: q.X, y: q.Y, idx: -1})

	var idxs []int
	for _, c := range keep.Heap {
		if c.Comparable != nil {
			idxs = append(idxs, c.Comparable.(eventPoint).idx)
		}
	}
	sort.Ints(idxs)
	return idxs
}
