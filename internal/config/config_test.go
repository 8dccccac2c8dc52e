package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.ImageSize != 416 {
		t.Errorf("Expected image size 416, got %d", cfg.ImageSize)
	}
	if cfg.AreaThresholdPixels != 500 {
		t.Errorf("Expected area threshold 500, got %d", cfg.AreaThresholdPixels)
	}
	if cfg.ChangeRatioThreshold != 0.02 {
		t.Errorf("Expected ratio threshold 0.02, got %f", cfg.ChangeRatioThreshold)
	}
	if cfg.SmoothingSigma != 2.0 || cfg.BinarizeThreshold != 0.6 {
		t.Errorf("Wrong smoothing defaults: sigma %f, binarize %f", cfg.SmoothingSigma, cfg.BinarizeThreshold)
	}
	if !cfg.EnableEnhancement {
		t.Error("Enhancement should default on")
	}
}

func TestLoadFileOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
area_threshold_pixels: 800
change_ratio_threshold: 0.05
cloud_cover_max: 35
geojson_path: custom/aoi.geojson
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.AreaThresholdPixels != 800 {
		t.Errorf("Expected area threshold 800, got %d", cfg.AreaThresholdPixels)
	}
	if cfg.ChangeRatioThreshold != 0.05 {
		t.Errorf("Expected ratio threshold 0.05, got %f", cfg.ChangeRatioThreshold)
	}
	if cfg.GeoJSONPath != "custom/aoi.geojson" {
		t.Errorf("Expected custom geojson path, got %s", cfg.GeoJSONPath)
	}
	// Untouched fields keep their defaults
	if cfg.ImageSize != 416 {
		t.Errorf("ImageSize should keep its default, got %d", cfg.ImageSize)
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()

	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("area_threshold_pixels: [not an int"), 0644)
	if err := LoadFile(cfg, bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("NVIDIA_API_KEY", "nvapi-test")
	t.Setenv("EARTHDATA_USERNAME", "user")
	t.Setenv("EARTHDATA_PASSWORD", "pass")
	t.Setenv("EARTHDATA_TOKEN", "tok")

	cfg := Default()
	LoadEnv(cfg)

	if cfg.APIKey != "nvapi-test" {
		t.Errorf("API key not loaded: %q", cfg.APIKey)
	}
	if cfg.EarthdataUsername != "user" || cfg.EarthdataPassword != "pass" || cfg.EarthdataToken != "tok" {
		t.Error("Earthdata credentials not loaded from environment")
	}
}
