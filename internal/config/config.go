package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every pipeline knob. Flags in cmd fill it; an optional
// YAML file provides the same fields for scripted runs.
type Config struct {
	GeoJSONPath string `yaml:"geojson_path"`
	InputDir    string `yaml:"input_dir"`
	OutputDir   string `yaml:"output_dir"`

	// Acquisition
	ImageSize     int     `yaml:"image_size"`      // Model input resolution (SIZE x SIZE)
	CloudCoverMax float64 `yaml:"cloud_cover_max"` // Maximum cloud cover percentage, 0-100
	LookbackDays  int     `yaml:"lookback_days"`   // Days between the before and after snapshots

	// Inference service
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"-"` // Environment only, never persisted

	// Imagery credentials (environment only)
	EarthdataUsername string `yaml:"-"`
	EarthdataPassword string `yaml:"-"`
	EarthdataToken    string `yaml:"-"`

	// Decision thresholds
	AreaThresholdPixels  int     `yaml:"area_threshold_pixels"`
	ChangeRatioThreshold float64 `yaml:"change_ratio_threshold"`
	SmoothingSigma       float64 `yaml:"smoothing_sigma"`
	BinarizeThreshold    float64 `yaml:"binarize_threshold"`

	// Pre-inference enhancement
	EnableEnhancement bool    `yaml:"enable_enhancement"`
	PercentileLow     float64 `yaml:"percentile_low"`
	PercentileHigh    float64 `yaml:"percentile_high"`
	SaturationBoost   float64 `yaml:"saturation_boost"`
	Gamma             float64 `yaml:"gamma"`

	// Run modes
	SkipDownload  bool `yaml:"-"`
	SkipInference bool `yaml:"-"`
	ShowStats     bool `yaml:"-"`
}

// Default returns the deployment defaults matching the trained model
// (416x416 inputs) and the calibrated decision thresholds.
func Default() *Config {
	return &Config{
		GeoJSONPath:          "data/aoi.geojson",
		InputDir:             "data/input",
		OutputDir:            "data/output",
		ImageSize:            416,
		CloudCoverMax:        20,
		LookbackDays:         365,
		APIURL:               "https://ai.api.nvidia.com/v1/cv/nvidia/visual-changenet",
		AreaThresholdPixels:  500,
		ChangeRatioThreshold: 0.02,
		SmoothingSigma:       2.0,
		BinarizeThreshold:    0.6,
		EnableEnhancement:    true,
		PercentileLow:        2,
		PercentileHigh:       98,
		SaturationBoost:      1.25,
		Gamma:                1.0,
	}
}

// LoadFile overlays values from a YAML config file onto cfg
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv fills credentials from the environment
func LoadEnv(cfg *Config) {
	if v := os.Getenv("NVIDIA_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("EARTHDATA_USERNAME"); v != "" {
		cfg.EarthdataUsername = v
	}
	if v := os.Getenv("EARTHDATA_PASSWORD"); v != "" {
		cfg.EarthdataPassword = v
	}
	if v := os.Getenv("EARTHDATA_TOKEN"); v != "" {
		cfg.EarthdataToken = v
	}
}
