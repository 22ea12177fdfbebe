package gate

import (
	"github.com/fabbondanza/cytogate/internal/config"
)

// ContextConfigFromTuning maps file-backed tuning onto a context
// configuration gating x against y. Pass an empty y for 1D gating.
func ContextConfigFromTuning(tc *config.TuningConfig, x, y string) ContextConfig {
	cfg := DefaultContextConfig(x)
	cfg.Y = y
	cfg.SampleFrac = tc.GetSampleFrac()
	cfg.Downsample = tc.GetDownsampleMethod()
	cfg.Density.Alpha = tc.GetDensityAlpha()
	cfg.Density.ProbeN = tc.GetDensityProbe()
	cfg.FaithfulRadius = tc.GetFaithfulRadius()
	cfg.Seed = tc.GetSeed()
	return cfg
}

// EstimatorConfigFromTuning maps file-backed tuning onto threshold
// estimation parameters.
func EstimatorConfigFromTuning(tc *config.TuningConfig) EstimatorConfig {
	return EstimatorConfig{
		KDEBandwidth:         tc.GetKDEBandwidth(),
		BandwidthFolds:       tc.GetBandwidthFolds(),
		Quantile:             tc.GetQuantile(),
		Std:                  tc.GetStdMultiplier(),
		PeakThreshold:        tc.GetPeakThreshold(),
		IgnoreDoublePositive: tc.GetIgnoreDoublePositive(),
	}
}

// GuidedConfigFromTuning maps file-backed tuning onto control-guided gate
// parameters.
func GuidedConfigFromTuning(tc *config.TuningConfig) GuidedConfig {
	return GuidedConfig{
		Estimator:       EstimatorConfigFromTuning(tc),
		ZScoreThreshold: tc.GetZScoreThreshold(),
	}
}

// ClusteringConfigFromTuning maps file-backed tuning onto clustering gate
// parameters.
func ClusteringConfigFromTuning(tc *config.TuningConfig) ClusteringConfig {
	return ClusteringConfig{
		MinPopSize: tc.GetMinPopSize(),
		ChunkSize:  tc.GetChunkSize(),
		Restarts:   tc.GetConsensusRestarts(),
		Seed:       tc.GetConsensusSeed(),
		Workers:    tc.GetWorkers(),
	}
}
