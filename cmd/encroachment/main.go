package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/Amitlaxman/River-Encroachment-Detection/internal/analysis"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/changemap"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/changenet"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/config"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/enhance"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/sentinel"
	"github.com/Amitlaxman/River-Encroachment-Detection/internal/system"
)

func main() {
	system.InitResourceLimits()

	cfg := config.Default()

	configPtr := flag.String("config", "", "Path to a YAML config file (flags override it)")
	geojsonPtr := flag.String("geojson", cfg.GeoJSONPath, "Path to the area-of-interest GeoJSON")
	inputPtr := flag.String("input-dir", cfg.InputDir, "Directory for the before/after image pair")
	outputPtr := flag.String("output-dir", cfg.OutputDir, "Directory for inference output artifacts")
	sizePtr := flag.Int("image-size", cfg.ImageSize, "Model input resolution (NxN)")
	cloudPtr := flag.Float64("cloud-cover", cfg.CloudCoverMax, "Maximum cloud cover percentage (0-100)")
	lookbackPtr := flag.Int("lookback", cfg.LookbackDays, "Days between before and after snapshots")
	areaPtr := flag.Int("area-threshold", cfg.AreaThresholdPixels, "Minimum changed-pixel count for a verdict")
	ratioPtr := flag.Float64("ratio-threshold", cfg.ChangeRatioThreshold, "Minimum changed-pixel ratio for a verdict")
	sigmaPtr := flag.Float64("sigma", cfg.SmoothingSigma, "Gaussian smoothing sigma in pixels")
	binarizePtr := flag.Float64("binarize", cfg.BinarizeThreshold, "Binarize threshold on normalized intensity (0-1)")
	enhancePtr := flag.Bool("enhance", cfg.EnableEnhancement, "Enhance contrast/saturation before inference")
	skipDownloadPtr := flag.Bool("skip-download", false, "Reuse the existing before/after pair")
	skipInferencePtr := flag.Bool("skip-inference", false, "Analyze an existing output directory")
	statsPtr := flag.Bool("stats", false, "Print a resource usage report")

	flag.Parse()

	if *configPtr != "" {
		if err := config.LoadFile(cfg, *configPtr); err != nil {
			log.Fatalf("[-] Config error: %v", err)
		}
	}
	config.LoadEnv(cfg)

	// Flags the user set explicitly win over the config file
	overrides := map[string]func(){
		"geojson":         func() { cfg.GeoJSONPath = *geojsonPtr },
		"input-dir":       func() { cfg.InputDir = *inputPtr },
		"output-dir":      func() { cfg.OutputDir = *outputPtr },
		"image-size":      func() { cfg.ImageSize = *sizePtr },
		"cloud-cover":     func() { cfg.CloudCoverMax = *cloudPtr },
		"lookback":        func() { cfg.LookbackDays = *lookbackPtr },
		"area-threshold":  func() { cfg.AreaThresholdPixels = *areaPtr },
		"ratio-threshold": func() { cfg.ChangeRatioThreshold = *ratioPtr },
		"sigma":           func() { cfg.SmoothingSigma = *sigmaPtr },
		"binarize":        func() { cfg.BinarizeThreshold = *binarizePtr },
		"enhance":         func() { cfg.EnableEnhancement = *enhancePtr },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	cfg.SkipDownload = *skipDownloadPtr
	cfg.SkipInference = *skipInferencePtr
	cfg.ShowStats = *statsPtr

	if err := system.EnsureDirs(cfg.InputDir, cfg.OutputDir); err != nil {
		log.Fatalf("[-] %v", err)
	}

	start := time.Now()
	ctx := context.Background()

	fmt.Println("============================================================")
	fmt.Println("ENCROACHMENT DETECTION SYSTEM")
	fmt.Println("============================================================")

	beforePath := filepath.Join(cfg.InputDir, "before.jpg")
	afterPath := filepath.Join(cfg.InputDir, "after.jpg")

	// Step 1: Acquire the before/after pair
	if !cfg.SkipDownload {
		fmt.Println("\n[Step 1] Downloading Sentinel-2 images...")
		fmt.Printf("[*] Cloud cover threshold: %.0f%%\n", cfg.CloudCoverMax)
		fmt.Printf("[*] Image size: %dx%dx3\n", cfg.ImageSize, cfg.ImageSize)

		bounds, err := sentinel.LoadBounds(cfg.GeoJSONPath)
		if err != nil {
			log.Fatalf("[-] Area of interest error: %v", err)
		}

		dl := sentinel.NewDownloader(bounds, cfg.ImageSize, cfg.EarthdataToken, cfg.EarthdataUsername, cfg.EarthdataPassword)
		dl.CloudCoverMax = cfg.CloudCoverMax

		beforePath, afterPath, err = dl.DownloadPair(ctx, cfg.InputDir, time.Now(), cfg.LookbackDays)
		if err != nil {
			log.Fatalf("[-] Image acquisition failed: %v", err)
		}
		fmt.Printf("[+] Before image: %s\n", beforePath)
		fmt.Printf("[+] After image: %s\n", afterPath)

		if cfg.EnableEnhancement {
			opts := enhance.Options{
				PercentileLow:   cfg.PercentileLow,
				PercentileHigh:  cfg.PercentileHigh,
				SaturationBoost: cfg.SaturationBoost,
				Gamma:           cfg.Gamma,
			}
			for _, p := range []string{beforePath, afterPath} {
				if err := enhance.File(p, opts); err != nil {
					log.Printf("[!] Enhancement failed for %s: %v", p, err)
				}
			}
		}
	} else {
		fmt.Println("\n[Step 1] Skipping download, reusing existing pair")
	}

	// Step 2: Run Visual ChangeNet
	if !cfg.SkipInference {
		fmt.Println("\n[Step 2] Running Visual ChangeNet...")
		if cfg.APIKey == "" {
			log.Fatalf("[-] NVIDIA_API_KEY is not set")
		}
		client := changenet.NewClient(cfg.APIURL, cfg.APIKey)
		if err := client.Run(ctx, beforePath, afterPath, cfg.OutputDir); err != nil {
			log.Fatalf("[-] Inference failed: %v", err)
		}
	} else {
		fmt.Println("\n[Step 2] Skipping inference, analyzing existing output")
	}

	// Step 3: Analyze the change map
	fmt.Println("\n[Step 3] Analyzing output...")
	raster, err := changemap.Load(cfg.OutputDir)
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	engine := analysis.NewEngine()
	engine.AreaThresholdPixels = cfg.AreaThresholdPixels
	engine.ChangeRatioThreshold = cfg.ChangeRatioThreshold
	engine.SmoothingSigma = cfg.SmoothingSigma
	engine.BinarizeThreshold = cfg.BinarizeThreshold

	result, err := engine.Analyze(raster)
	if err != nil {
		log.Fatalf("[-] Analysis failed: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("ANALYSIS RESULTS")
	fmt.Println("============================================================")
	fmt.Printf("Changed pixels : %d\n", result.ChangedPixels)
	fmt.Printf("Change ratio   : %.4f\n", result.ChangeRatio)
	fmt.Printf("Date           : %s\n", time.Now().Format("2006-01-02 15:04:05"))

	if result.Encroachment {
		fmt.Println("\n[ALERT] ENCROACHMENT DETECTED")
	} else {
		fmt.Println("\n[OK] NO ENCROACHMENT DETECTED")
	}
	fmt.Println("============================================================")

	if cfg.ShowStats {
		system.PrintRunStats(start)
	}
}
