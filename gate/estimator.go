package gate

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/fabbondanza/cytogate/internal/kde"
)

// Method labels recorded on population geometry alongside the threshold
// each describes.
const (
	MethodQuantile     = "Quantile"
	MethodStdDev       = "Standard deviation"
	MethodLocalMinimum = "Local minima between pair of highest peaks"
	MethodFMOGuided    = "FMO guided minimum density threshold"
)

// EstimatorConfig selects how a density threshold is derived from a single
// dimension's values.
type EstimatorConfig struct {
	// KDEBandwidth is the kernel bandwidth. Zero or negative selects the
	// bandwidth by cross-validation.
	KDEBandwidth float64

	// BandwidthCandidates and BandwidthFolds parameterise bandwidth
	// cross-validation; zero values fall back to the kde defaults.
	BandwidthCandidates int
	BandwidthFolds      int

	// Quantile positions the threshold when the density is unimodal.
	// It takes precedence over Std whenever it is positive.
	Quantile float64

	// Std positions a unimodal threshold at mean + Std*stddev. Only
	// consulted when Quantile is zero.
	Std float64

	// PeakThreshold discards peaks below this fraction of the tallest
	// peak's density. Zero keeps every peak.
	PeakThreshold float64

	// IgnoreDoublePositive drops peaks after the tallest one before
	// locating a local minimum, ignoring double-positive shoulders.
	IgnoreDoublePositive bool
}

// DefaultEstimatorConfig returns the standard estimator: fixed 0.01
// bandwidth and a 0.95 quantile for unimodal densities.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		KDEBandwidth:        0.01,
		BandwidthCandidates: kde.DefaultBandwidthCandidates,
		BandwidthFolds:      kde.DefaultBandwidthFolds,
		Quantile:            0.95,
	}
}

// Estimate derives a threshold from values. Multimodal densities are split
// at the local minimum between the two tallest peaks; unimodal densities
// fall back to the configured quantile or standard-deviation offset. The
// returned string names the method that produced the threshold.
func (cfg EstimatorConfig) Estimate(values []float64, rng *rand.Rand) (float64, string, error) {
	bw := cfg.KDEBandwidth
	if bw <= 0 {
		candidates := cfg.BandwidthCandidates
		if candidates <= 0 {
			candidates = kde.DefaultBandwidthCandidates
		}
		folds := cfg.BandwidthFolds
		if folds <= 0 {
			folds = kde.DefaultBandwidthFolds
		}
		bw = kde.CrossValidateBandwidth(values, candidates, folds, rng)
	}

	density, grid := kde.Estimate(values, bw)
	peaks := kde.FindPeaks(density)
	if cfg.PeakThreshold > 0 {
		peaks = kde.FilterPeaks(peaks, density, cfg.PeakThreshold)
	}
	if len(peaks) == 0 {
		return 0, "", Errorf("no peaks found in estimated density")
	}
	if len(peaks) > 1 && cfg.IgnoreDoublePositive {
		peaks = kde.TruncateAfterTallest(peaks, density)
	}

	var threshold float64
	var method string
	if len(peaks) == 1 {
		threshold, method = cfg.unimodal(values)
	} else {
		threshold = kde.LocalMinimumBetween(density, grid, peaks)
		method = MethodLocalMinimum
	}
	if math.IsNaN(threshold) {
		return 0, "", Errorf("estimated threshold is undefined for method %q", method)
	}
	return threshold, method, nil
}

// unimodal places the threshold on the upper tail of a single-peak density.
func (cfg EstimatorConfig) unimodal(values []float64) (float64, string) {
	if cfg.Quantile > 0 {
		return kde.QuantileNearest(values, cfg.Quantile), MethodQuantile
	}
	if cfg.Std > 0 {
		mean, std := stat.MeanStdDev(values, nil)
		return mean + std*cfg.Std, MethodStdDev
	}
	return kde.QuantileNearest(values, 0.95), MethodQuantile
}
