package geom

import (
	"math"
	"testing"
)

func TestConvexHull_Square(t *testing.T) {
	points := []Point{
		{0, 0}, {1, 0}, {1, 1}, {0, 1},
		{0.5, 0.5}, {0.25, 0.75}, // interior points must not appear on the hull
	}
	hull := ConvexHull(points)
	if len(hull.Vertices) != 4 {
		t.Fatalf("expected 4 hull vertices, got %d: %v", len(hull.Vertices), hull.Vertices)
	}
	for _, corner := range []Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		found := false
		for _, v := range hull.Vertices {
			if v == corner {
				found = true
			}
		}
		if !found {
			t.Errorf("corner %v missing from hull %v", corner, hull.Vertices)
		}
	}
}

func TestConvexHull_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   int
	}{
		{"empty", nil, 0},
		{"single", []Point{{1, 2}}, 1},
		{"pair", []Point{{0, 0}, {1, 1}}, 2},
		{"duplicates", []Point{{3, 3}, {3, 3}, {3, 3}}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hull := ConvexHull(tc.points)
			if len(hull.Vertices) != tc.want {
				t.Errorf("expected %d vertices, got %d", tc.want, len(hull.Vertices))
			}
			if hull.Contains(Point{0.5, 0.5}) {
				t.Error("degenerate polygon must not contain any point")
			}
		})
	}
}

func TestConvexHull_Collinear(t *testing.T) {
	hull := ConvexHull([]Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	if len(hull.Vertices) > 2 {
		t.Fatalf("collinear points should collapse to a segment, got %v", hull.Vertices)
	}
}

func TestPolygonContains(t *testing.T) {
	square := Polygon{Vertices: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{5, 5}, true},
		{"near edge inside", Point{0.001, 5}, true},
		{"outside right", Point{10.5, 5}, false},
		{"outside above", Point{5, 11}, false},
		{"far away", Point{-100, -100}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := square.Contains(tc.p); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}

func TestPolygonContains_Concave(t *testing.T) {
	// A "C" shape: the notch on the right side is outside the polygon.
	c := Polygon{Vertices: []Point{
		{0, 0}, {10, 0}, {10, 3}, {3, 3}, {3, 7}, {10, 7}, {10, 10}, {0, 10},
	}}
	if !c.Contains(Point{1, 5}) {
		t.Error("point in the spine should be inside")
	}
	if c.Contains(Point{7, 5}) {
		t.Error("point in the notch should be outside")
	}
}

func TestCentroid_Median(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 100}
	ys := []float64{10, 20, 30, 40, 1000}
	c := Centroid(xs, ys)
	if c.X != 3 || c.Y != 30 {
		t.Errorf("expected median centroid (3, 30), got (%v, %v)", c.X, c.Y)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{5, 1, 3}, 3},
		{"even", []float64{1, 2, 3, 4}, 2.5},
		{"single", []float64{7}, 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Median(tc.values); got != tc.want {
				t.Errorf("Median(%v) = %v, want %v", tc.values, got, tc.want)
			}
		})
	}
	if !math.IsNaN(Median(nil)) {
		t.Error("median of empty input should be NaN")
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(Point{0, 0}, Point{3, 4}); d != 5 {
		t.Errorf("expected distance 5, got %v", d)
	}
}
