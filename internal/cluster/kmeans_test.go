package cluster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fabbondanza/cytogate/internal/geom"
)

func TestKMeans_Validation(t *testing.T) {
	points := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}
	rng := rand.New(rand.NewSource(42))

	if _, err := KMeans(points, KMeansParams{K: 0}, rng); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := KMeans(points, KMeansParams{K: 3}, rng); err == nil {
		t.Error("expected error for k > point count")
	}
}

func TestKMeans_TwoBlobs(t *testing.T) {
	points := append(blob(0, 0, 20), blob(10, 10, 20)...)
	rng := rand.New(rand.NewSource(42))

	result, err := KMeans(points, KMeansParams{K: 2}, rng)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Centroids) != 2 {
		t.Fatalf("expected 2 centroids, got %d", len(result.Centroids))
	}

	// Each centroid sits on one blob; blob means are (0.2, 0.15) and
	// (10.2, 10.15).
	for _, c := range result.Centroids {
		nearOrigin := math.Hypot(c.X-0.2, c.Y-0.15) < 0.5
		nearFar := math.Hypot(c.X-10.2, c.Y-10.15) < 0.5
		if !nearOrigin && !nearFar {
			t.Errorf("centroid (%f, %f) far from both blob means", c.X, c.Y)
		}
	}

	// All points of a blob share a label and the blobs differ.
	for i := 1; i < 20; i++ {
		if result.Labels[i] != result.Labels[0] {
			t.Fatalf("blob 1 split across labels at point %d", i)
		}
	}
	for i := 21; i < 40; i++ {
		if result.Labels[i] != result.Labels[20] {
			t.Fatalf("blob 2 split across labels at point %d", i)
		}
	}
	if result.Labels[0] == result.Labels[20] {
		t.Error("blobs share a label")
	}
}

func TestKMeans_SeededDeterminism(t *testing.T) {
	points := append(blob(0, 0, 15), blob(4, 4, 15)...)
	points = append(points, blob(-3, 5, 15)...)

	run1, err := KMeans(points, KMeansParams{K: 3}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	run2, err := KMeans(points, KMeansParams{K: 3}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(run1, run2); diff != "" {
		t.Errorf("same seed produced different clusterings (-run1 +run2):\n%s", diff)
	}
}

func TestKMeans_KEqualsPointCount(t *testing.T) {
	points := []geom.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 5}}
	rng := rand.New(rand.NewSource(1))

	result, err := KMeans(points, KMeansParams{K: 3, Restarts: 3}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if result.Inertia != 0 {
		t.Errorf("expected zero inertia with k=n, got %f", result.Inertia)
	}

	seen := make(map[int]bool)
	for _, label := range result.Labels {
		seen[label] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct labels, got %d", len(seen))
	}
}

func TestKMeans_IdenticalPoints(t *testing.T) {
	points := make([]geom.Point, 6)
	for i := range points {
		points[i] = geom.Point{X: 2, Y: 3}
	}
	rng := rand.New(rand.NewSource(3))

	result, err := KMeans(points, KMeansParams{K: 2}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if result.Inertia != 0 {
		t.Errorf("expected zero inertia for identical points, got %f", result.Inertia)
	}
}
