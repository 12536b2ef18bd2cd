package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig holds optional overrides for the detection parameter set. The
// sensitivity mapper produces the baseline; any field set here replaces the
// mapped value on every cycle. Fields omitted from the JSON file are left nil,
// so partial configs are safe.
type TuningConfig struct {
	// Detection baseline
	BaseThreshold *float64 `json:"base_threshold,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	MinRangeHard  *float64 `json:"min_range_hard,omitempty"`

	// Compaction
	BaseRangeTol   *float64 `json:"base_range_tol,omitempty"`
	StepPerBucket  *float64 `json:"step_per_bucket,omitempty"`
	AngleBucketDeg *float64 `json:"angle_bucket_deg,omitempty"`
	MaxRangeTol    *float64 `json:"max_range_tol,omitempty"`
	Mode           *string  `json:"mode,omitempty"` // "nms" or "cluster"

	// Ego-motion rejection
	DopplerTolNormal   *int     `json:"doppler_tol_normal,omitempty"`
	DopplerTolFast     *int     `json:"doppler_tol_fast,omitempty"`
	FastSpeed          *float64 `json:"fast_speed,omitempty"`
	SlowSpeed          *float64 `json:"slow_speed,omitempty"`
	RequirePersistence *bool    `json:"require_persistence,omitempty"`

	// Far-range handling
	FarStartMeters *float64 `json:"far_start_meters,omitempty"`
	SlopeDBPerM    *float64 `json:"slope_db_per_m,omitempty"`
	MaxBoostDB     *float64 `json:"max_boost_db,omitempty"`
	ThresholdRelax *float64 `json:"threshold_relax,omitempty"`

	// Slow-mover rescue
	RescueEnable      *bool    `json:"rescue_enable,omitempty"`
	RescueExcludeBins *int     `json:"rescue_exclude_bins,omitempty"`
	RescueRelax       *float64 `json:"rescue_relax,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with no overrides set.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON stay nil and leave the mapped value
// untouched.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// Validate checks every override that is set. Unset fields are always valid.
func (c *TuningConfig) Validate() error {
	if c.BaseThreshold != nil {
		if *c.BaseThreshold <= 0 || *c.BaseThreshold >= 1 {
			return fmt.Errorf("base_threshold must be in (0, 1), got %f", *c.BaseThreshold)
		}
	}
	if c.TopK != nil && *c.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", *c.TopK)
	}
	if c.MinRangeHard != nil && *c.MinRangeHard < 0 {
		return fmt.Errorf("min_range_hard must be non-negative, got %f", *c.MinRangeHard)
	}
	if c.BaseRangeTol != nil && *c.BaseRangeTol < 0 {
		return fmt.Errorf("base_range_tol must be non-negative, got %f", *c.BaseRangeTol)
	}
	if c.StepPerBucket != nil && *c.StepPerBucket < 0 {
		return fmt.Errorf("step_per_bucket must be non-negative, got %f", *c.StepPerBucket)
	}
	if c.AngleBucketDeg != nil && *c.AngleBucketDeg <= 0 {
		return fmt.Errorf("angle_bucket_deg must be positive, got %f", *c.AngleBucketDeg)
	}
	if c.MaxRangeTol != nil && *c.MaxRangeTol <= 0 {
		return fmt.Errorf("max_range_tol must be positive, got %f", *c.MaxRangeTol)
	}
	if c.Mode != nil {
		if *c.Mode != "nms" && *c.Mode != "cluster" {
			return fmt.Errorf("mode must be \"nms\" or \"cluster\", got %q", *c.Mode)
		}
	}
	if c.DopplerTolNormal != nil && *c.DopplerTolNormal < 0 {
		return fmt.Errorf("doppler_tol_normal must be non-negative, got %d", *c.DopplerTolNormal)
	}
	if c.DopplerTolFast != nil && *c.DopplerTolFast < 0 {
		return fmt.Errorf("doppler_tol_fast must be non-negative, got %d", *c.DopplerTolFast)
	}
	if c.FastSpeed != nil && *c.FastSpeed <= 0 {
		return fmt.Errorf("fast_speed must be positive, got %f", *c.FastSpeed)
	}
	if c.SlowSpeed != nil && *c.SlowSpeed <= 0 {
		return fmt.Errorf("slow_speed must be positive, got %f", *c.SlowSpeed)
	}
	// The hysteresis band needs fast above slow when both are overridden.
	if c.FastSpeed != nil && c.SlowSpeed != nil && *c.FastSpeed <= *c.SlowSpeed {
		return fmt.Errorf("fast_speed %f must exceed slow_speed %f", *c.FastSpeed, *c.SlowSpeed)
	}
	if c.FarStartMeters != nil && *c.FarStartMeters < 0 {
		return fmt.Errorf("far_start_meters must be non-negative, got %f", *c.FarStartMeters)
	}
	if c.SlopeDBPerM != nil && *c.SlopeDBPerM < 0 {
		return fmt.Errorf("slope_db_per_m must be non-negative, got %f", *c.SlopeDBPerM)
	}
	if c.MaxBoostDB != nil && *c.MaxBoostDB < 0 {
		return fmt.Errorf("max_boost_db must be non-negative, got %f", *c.MaxBoostDB)
	}
	if c.ThresholdRelax != nil {
		if *c.ThresholdRelax <= 0 || *c.ThresholdRelax > 1 {
			return fmt.Errorf("threshold_relax must be in (0, 1], got %f", *c.ThresholdRelax)
		}
	}
	if c.RescueExcludeBins != nil && *c.RescueExcludeBins < 0 {
		return fmt.Errorf("rescue_exclude_bins must be non-negative, got %d", *c.RescueExcludeBins)
	}
	if c.RescueRelax != nil {
		if *c.RescueRelax <= 0 || *c.RescueRelax > 1 {
			return fmt.Errorf("rescue_relax must be in (0, 1], got %f", *c.RescueRelax)
		}
	}
	return nil
}
