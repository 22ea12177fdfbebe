package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Downsample method names accepted by downsample_method.
const (
	DownsampleUniform  = "uniform"
	DownsampleDensity  = "density"
	DownsampleFaithful = "faithful"
)

// TuningConfig is the root JSON schema for gating tuning parameters. All
// fields are pointers so a partial file overrides only what it names; the
// Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Threshold estimation params
	KDEBandwidth         *float64 `json:"kde_bandwidth,omitempty"` // 0 selects cross-validation
	BandwidthFolds       *int     `json:"bandwidth_folds,omitempty"`
	Quantile             *float64 `json:"quantile,omitempty"`
	StdMultiplier        *float64 `json:"std_multiplier,omitempty"` // 0 disables the mean+k*std rule
	PeakThreshold        *float64 `json:"peak_threshold,omitempty"`
	IgnoreDoublePositive *bool    `json:"ignore_double_positive,omitempty"`
	ZScoreThreshold      *float64 `json:"z_score_threshold,omitempty"`

	// Clustering params
	MinPopSize        *int   `json:"min_pop_size,omitempty"`
	ChunkSize         *int   `json:"chunk_size,omitempty"`
	ConsensusRestarts *int   `json:"consensus_restarts,omitempty"`
	ConsensusSeed     *int64 `json:"consensus_seed,omitempty"`
	Workers           *int   `json:"workers,omitempty"` // 0 means one per CPU

	// Sampling params
	SampleFrac       *float64 `json:"sample_frac,omitempty"` // 0 disables sampling
	DownsampleMethod *string  `json:"downsample_method,omitempty"`
	DensityAlpha     *float64 `json:"density_alpha,omitempty"`
	DensityProbe     *int     `json:"density_probe,omitempty"`
	FaithfulRadius   *float64 `json:"faithful_radius,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its default value. The values here mirror DefaultConfigPath.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		KDEBandwidth:         ptrFloat64(0.01),
		BandwidthFolds:       ptrInt(20),
		Quantile:             ptrFloat64(0.95),
		StdMultiplier:        ptrFloat64(0),
		PeakThreshold:        ptrFloat64(0.05),
		IgnoreDoublePositive: ptrBool(false),
		ZScoreThreshold:      ptrFloat64(2),
		MinPopSize:           ptrInt(10),
		ChunkSize:            ptrInt(30000),
		ConsensusRestarts:    ptrInt(10),
		ConsensusSeed:        ptrInt64(42),
		Workers:              ptrInt(0),
		SampleFrac:           ptrFloat64(0),
		DownsampleMethod:     ptrString(DownsampleUniform),
		DensityAlpha:         ptrFloat64(5),
		DensityProbe:         ptrInt(2000),
		FaithfulRadius:       ptrFloat64(0.1),
		Seed:                 ptrInt64(42),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.KDEBandwidth != nil && *c.KDEBandwidth < 0 {
		return fmt.Errorf("kde_bandwidth must be non-negative, got %f", *c.KDEBandwidth)
	}
	if c.BandwidthFolds != nil && *c.BandwidthFolds < 2 {
		return fmt.Errorf("bandwidth_folds must be at least 2, got %d", *c.BandwidthFolds)
	}
	if c.Quantile != nil {
		if *c.Quantile <= 0 || *c.Quantile >= 1 {
			return fmt.Errorf("quantile must be between 0 and 1 exclusive, got %f", *c.Quantile)
		}
	}
	if c.StdMultiplier != nil && *c.StdMultiplier < 0 {
		return fmt.Errorf("std_multiplier must be non-negative, got %f", *c.StdMultiplier)
	}
	if c.PeakThreshold != nil {
		if *c.PeakThreshold < 0 || *c.PeakThreshold > 1 {
			return fmt.Errorf("peak_threshold must be between 0 and 1, got %f", *c.PeakThreshold)
		}
	}
	if c.ZScoreThreshold != nil && *c.ZScoreThreshold <= 0 {
		return fmt.Errorf("z_score_threshold must be positive, got %f", *c.ZScoreThreshold)
	}
	if c.MinPopSize != nil && *c.MinPopSize < 1 {
		return fmt.Errorf("min_pop_size must be at least 1, got %d", *c.MinPopSize)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", *c.ChunkSize)
	}
	if c.ConsensusRestarts != nil && *c.ConsensusRestarts < 1 {
		return fmt.Errorf("consensus_restarts must be at least 1, got %d", *c.ConsensusRestarts)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.SampleFrac != nil {
		if *c.SampleFrac < 0 || *c.SampleFrac > 1 {
			return fmt.Errorf("sample_frac must be between 0 and 1, got %f", *c.SampleFrac)
		}
	}
	if c.DownsampleMethod != nil && *c.DownsampleMethod != "" {
		switch *c.DownsampleMethod {
		case DownsampleUniform, DownsampleDensity, DownsampleFaithful:
		default:
			return fmt.Errorf("unknown downsample_method %q", *c.DownsampleMethod)
		}
	}
	if c.DensityAlpha != nil && *c.DensityAlpha <= 0 {
		return fmt.Errorf("density_alpha must be positive, got %f", *c.DensityAlpha)
	}
	if c.DensityProbe != nil && *c.DensityProbe < 1 {
		return fmt.Errorf("density_probe must be at least 1, got %d", *c.DensityProbe)
	}
	if c.FaithfulRadius != nil && *c.FaithfulRadius <= 0 {
		return fmt.Errorf("faithful_radius must be positive, got %f", *c.FaithfulRadius)
	}
	return nil
}

// GetKDEBandwidth returns the kde_bandwidth value or the default.
// Zero means the bandwidth is chosen by cross-validation.
func (c *TuningConfig) GetKDEBandwidth() float64 {
	if c.KDEBandwidth == nil {
		return 0.01 // default
	}
	return *c.KDEBandwidth
}

// GetBandwidthFolds returns the bandwidth_folds value or the default.
func (c *TuningConfig) GetBandwidthFolds() int {
	if c.BandwidthFolds == nil {
		return 20
	}
	return *c.BandwidthFolds
}

// GetQuantile returns the quantile value or the default.
func (c *TuningConfig) GetQuantile() float64 {
	if c.Quantile == nil {
		return 0.95
	}
	return *c.Quantile
}

// GetStdMultiplier returns the std_multiplier value or the default.
func (c *TuningConfig) GetStdMultiplier() float64 {
	if c.StdMultiplier == nil {
		return 0 // default: quantile rule, not mean+k*std
	}
	return *c.StdMultiplier
}

// GetPeakThreshold returns the peak_threshold value or the default.
func (c *TuningConfig) GetPeakThreshold() float64 {
	if c.PeakThreshold == nil {
		return 0.05
	}
	return *c.PeakThreshold
}

// GetIgnoreDoublePositive returns the ignore_double_positive value or the default.
func (c *TuningConfig) GetIgnoreDoublePositive() bool {
	if c.IgnoreDoublePositive == nil {
		return false
	}
	return *c.IgnoreDoublePositive
}

// GetZScoreThreshold returns the z_score_threshold value or the default.
func (c *TuningConfig) GetZScoreThreshold() float64 {
	if c.ZScoreThreshold == nil {
		return 2
	}
	return *c.ZScoreThreshold
}

// GetMinPopSize returns the min_pop_size value or the default.
func (c *TuningConfig) GetMinPopSize() int {
	if c.MinPopSize == nil {
		return 10
	}
	return *c.MinPopSize
}

// GetChunkSize returns the chunk_size value or the default.
func (c *TuningConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 30000
	}
	return *c.ChunkSize
}

// GetConsensusRestarts returns the consensus_restarts value or the default.
func (c *TuningConfig) GetConsensusRestarts() int {
	if c.ConsensusRestarts == nil {
		return 10
	}
	return *c.ConsensusRestarts
}

// GetConsensusSeed returns the consensus_seed value or the default.
func (c *TuningConfig) GetConsensusSeed() int64 {
	if c.ConsensusSeed == nil {
		return 42
	}
	return *c.ConsensusSeed
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default: one worker per CPU
	}
	return *c.Workers
}

// GetSampleFrac returns the sample_frac value or the default.
func (c *TuningConfig) GetSampleFrac() float64 {
	if c.SampleFrac == nil {
		return 0 // default: sampling disabled
	}
	return *c.SampleFrac
}

// GetDownsampleMethod returns the downsample_method value or the default.
func (c *TuningConfig) GetDownsampleMethod() string {
	if c.DownsampleMethod == nil || *c.DownsampleMethod == "" {
		return DownsampleUniform
	}
	return *c.DownsampleMethod
}

// GetDensityAlpha returns the density_alpha value or the default.
func (c *TuningConfig) GetDensityAlpha() float64 {
	if c.DensityAlpha == nil {
		return 5
	}
	return *c.DensityAlpha
}

// GetDensityProbe returns the density_probe value or the default.
func (c *TuningConfig) GetDensityProbe() int {
	if c.DensityProbe == nil {
		return 2000
	}
	return *c.DensityProbe
}

// GetFaithfulRadius returns the faithful_radius value or the default.
func (c *TuningConfig) GetFaithfulRadius() float64 {
	if c.FaithfulRadius == nil {
		return 0.1
	}
	return *c.FaithfulRadius
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}
