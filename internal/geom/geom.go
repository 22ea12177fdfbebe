// Package geom provides the 2D geometry used by cluster gating: convex hull
// polygons enclosing cluster events, point-in-polygon containment tests for
// population targets, and median centroids.
package geom

import (
	"math"
	"sort"
)

// Point is a location in the two gated dimensions.
type Point struct {
	X, Y float64
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}

// Polygon is a simple closed 2D boundary. Vertices are stored in
// counter-clockwise order without repeating the first vertex.
type Polygon struct {
	Vertices []Point
}

// ConvexHull computes the convex hull of a point set using the monotone
// chain algorithm. Collinear points on the hull boundary are dropped.
// Degenerate inputs (fewer than three distinct points) yield a polygon with
// fewer than three vertices; Contains reports false for such polygons.
func ConvexHull(points []Point) Polygon {
	n := len(points)
	if n == 0 {
		return Polygon{}
	}

	pts := make([]Point, n)
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	// Deduplicate to keep the hull walk stable.
	uniq := pts[:1]
	for _, p := range pts[1:] {
		last := uniq[len(uniq)-1]
		if p.X != last.X || p.Y != last.Y {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	n = len(pts)
	if n < 3 {
		return Polygon{Vertices: pts}
	}

	hull := make([]Point, 0, 2*n)

	// Lower hull.
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Upper hull.
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Last point repeats the first.
	return Polygon{Vertices: hull[:len(hull)-1]}
}

// cross returns the z-component of (b-a) x (c-a). Positive means the turn
// a->b->c is counter-clockwise.
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Contains reports whether p lies inside the polygon, using the ray casting
// rule. Points exactly on an edge may fall on either side; gating treats
// boundary events as excluded everywhere else, so no epsilon is applied.
func (poly Polygon) Contains(p Point) bool {
	v := poly.Vertices
	if len(v) < 3 {
		return false
	}
	inside := false
	j := len(v) - 1
	for i := 0; i < len(v); i++ {
		vi, vj := v[i], v[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Empty reports whether the polygon carries no vertices at all. Noise
// populations receive an empty polygon as their geometry.
func (poly Polygon) Empty() bool {
	return len(poly.Vertices) == 0
}

// Centroid returns the per-dimension median of the given coordinates. The
// median is deliberately used instead of the mean so a handful of stray
// events cannot drag a cluster's representative point off its mass.
func Centroid(xs, ys []float64) Point {
	return Point{X: Median(xs), Y: Median(ys)}
}

// Median returns the median of values, averaging the two central elements
// for even-length input. Returns NaN for empty input.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
