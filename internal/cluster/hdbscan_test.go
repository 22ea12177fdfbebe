package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fabbondanza/cytogate/internal/geom"
)

func TestFitHDBSCAN_InputValidation(t *testing.T) {
	if _, err := FitHDBSCAN(nil, 5); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := FitHDBSCAN(blob(0, 0, 10), 1); err == nil {
		t.Error("expected error for min cluster size below 2")
	}
}

func TestFitHDBSCAN_SinglePoint(t *testing.T) {
	model, err := FitHDBSCAN([]geom.Point{{X: 1, Y: 2}}, 2)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}
	if model.Clusters != 0 || model.Labels[0] != Noise {
		t.Errorf("single point should be noise, got %d clusters with label %d", model.Clusters, model.Labels[0])
	}
}

func TestFitHDBSCAN_TwoBlobs(t *testing.T) {
	points := append(blob(0, 0, 12), blob(10, 10, 12)...)

	// A 12-point blob cannot split into two groups of 8, so the only
	// stable division is blob against blob.
	model, err := FitHDBSCAN(points, 8)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}
	if model.Clusters != 2 {
		t.Fatalf("expected 2 clusters, got %d", model.Clusters)
	}
	for i := 1; i < 12; i++ {
		if model.Labels[i] != model.Labels[0] {
			t.Errorf("point %d: expected label %d, got %d", i, model.Labels[0], model.Labels[i])
		}
	}
	for i := 13; i < 24; i++ {
		if model.Labels[i] != model.Labels[12] {
			t.Errorf("point %d: expected label %d, got %d", i, model.Labels[12], model.Labels[i])
		}
	}
	if model.Labels[0] == Noise || model.Labels[12] == Noise {
		t.Error("blob points must not be noise")
	}
	if model.Labels[0] == model.Labels[12] {
		t.Errorf("blobs share label %d, expected distinct clusters", model.Labels[0])
	}
	for i, p := range model.Probabilities {
		if p <= 0 || p > 1 {
			t.Errorf("point %d: membership probability %v out of range", i, p)
		}
	}
}

func TestFitHDBSCAN_NoStableSplitIsAllNoise(t *testing.T) {
	// Six points cannot divide into two groups of four, so the root never
	// splits and no cluster is ever selected.
	points := []geom.Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2.1, Y: 0},
		{X: 3.3, Y: 0}, {X: 4.6, Y: 0}, {X: 6, Y: 0},
	}

	model, err := FitHDBSCAN(points, 4)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}
	if model.Clusters != 0 {
		t.Fatalf("expected 0 clusters, got %d", model.Clusters)
	}
	for i, label := range model.Labels {
		if label != Noise {
			t.Errorf("point %d: expected noise, got %d", i, label)
		}
	}

	labels, strengths := model.ApproximatePredict([]geom.Point{{X: 2, Y: 0.5}})
	if labels[0] != Noise || strengths[0] != 0 {
		t.Errorf("query nearest a noise point: expected (%d, 0), got (%d, %v)", Noise, labels[0], strengths[0])
	}
}

func TestHDBSCANModel_ApproximatePredict(t *testing.T) {
	points := append(blob(0, 0, 12), blob(10, 10, 12)...)
	model, err := FitHDBSCAN(points, 8)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}

	queries := []geom.Point{{X: 0.2, Y: 0.1}, {X: 10.2, Y: 10.1}}
	labels, strengths := model.ApproximatePredict(queries)

	if labels[0] != model.Labels[0] {
		t.Errorf("query at first blob: expected label %d, got %d", model.Labels[0], labels[0])
	}
	if labels[1] != model.Labels[12] {
		t.Errorf("query at second blob: expected label %d, got %d", model.Labels[12], labels[1])
	}
	for i, s := range strengths {
		if s <= 0 || s > 1 {
			t.Errorf("query %d: strength %v out of range", i, s)
		}
	}
}

func TestFitHDBSCAN_Determinism(t *testing.T) {
	points := append(blob(0, 0, 15), blob(4, 4, 15)...)

	run1, err := FitHDBSCAN(points, 6)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}
	run2, err := FitHDBSCAN(points, 6)
	if err != nil {
		t.Fatalf("FitHDBSCAN: %v", err)
	}

	if diff := cmp.Diff(run1.Labels, run2.Labels); diff != "" {
		t.Errorf("labels differ between runs (-run1 +run2):\n%s", diff)
	}
	if diff := cmp.Diff(run1.Probabilities, run2.Probabilities); diff != "" {
		t.Errorf("probabilities differ between runs (-run1 +run2):\n%s", diff)
	}
}
