package analysis

import (
	"fmt"
	"image"
	"math"
)

// Result is the outcome of one encroachment analysis
type Result struct {
	Encroachment  bool    // Verdict: both thresholds exceeded
	ChangedPixels int     // Count of pixels above the binarize threshold after smoothing
	ChangeRatio   float64 // ChangedPixels / total pixels, 0.0-1.0
}

// InvalidInputError reports a raster the engine cannot analyze
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid change raster: %s", e.Reason)
}

// Engine converts a raw change-intensity raster into an encroachment verdict.
// All thresholds are plain fields so callers can tune them per deployment.
type Engine struct {
	AreaThresholdPixels  int     // Minimum absolute changed-pixel count
	ChangeRatioThreshold float64 // Minimum changed fraction of the raster
	SmoothingSigma       float64 // Gaussian sigma in pixels
	BinarizeThreshold    float64 // Normalized intensity cutoff, 0.0-1.0
}

// NewEngine creates an engine with the deployment defaults
func NewEngine() *Engine {
	return &Engine{
		AreaThresholdPixels:  500,
		ChangeRatioThreshold: 0.02,
		SmoothingSigma:       2.0,
		BinarizeThreshold:    0.6,
	}
}

// Analyze smooths, binarizes and thresholds a change raster.
// Pure in-memory computation; the raster is not modified.
func (e *Engine) Analyze(raster *image.Gray) (Result, error) {
	if raster == nil {
		return Result{}, &InvalidInputError{Reason: "nil raster"}
	}

	bounds := raster.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	total := width * height
	if total <= 0 {
		return Result{}, &InvalidInputError{Reason: fmt.Sprintf("zero-sized raster %dx%d", width, height)}
	}

	// Step 1: Normalize 8-bit samples to [0,1]
	field := make([]float64, total)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			field[y*width+x] = float64(raster.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) / 255.0
		}
	}

	// Step 2: Suppress speckle noise before thresholding
	smoothed := gaussianSmooth(field, width, height, e.SmoothingSigma)

	// Steps 3-4: Binarize and count
	changed := 0
	for _, v := range smoothed {
		if v > e.BinarizeThreshold {
			changed++
		}
	}
	ratio := float64(changed) / float64(total)

	// Step 5: Both conditions must hold. The area check intentionally
	// rejects full coverage on rasters smaller than the area threshold.
	verdict := changed > e.AreaThresholdPixels && ratio > e.ChangeRatioThreshold

	return Result{
		Encroachment:  verdict,
		ChangedPixels: changed,
		ChangeRatio:   ratio,
	}, nil
}

// gaussianSmooth applies an isotropic Gaussian blur to a row-major field.
// The kernel is separable: one horizontal pass, one vertical pass.
// Borders reflect, so a constant field stays constant.
func gaussianSmooth(field []float64, width, height int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(field))
		copy(out, field)
		return out
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	tmp := make([]float64, len(field))
	out := make([]float64, len(field))

	// Horizontal pass
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sum += field[row+reflect(x+k, width)] * kernel[k+radius]
			}
			tmp[row+x] = sum
		}
	}

	// Vertical pass
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sum += tmp[reflect(y+k, height)*width+x] * kernel[k+radius]
			}
			out[y*width+x] = sum
		}
	}

	return out
}

// gaussianKernel builds a normalized 1-D kernel truncated at 4 sigma
func gaussianKernel(sigma float64) []float64 {
	radius := int(4.0*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}

	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflect maps an out-of-range index back into [0,n) by mirroring at the
// edges (half-sample symmetric, matching the smoothing default upstream)
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
