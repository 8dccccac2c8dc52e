package enhance

import (
	"image"
	"math"
	"sort"
)

// Options controls the pre-inference enhancement applied to hazy
// satellite scenes before they are uploaded
type Options struct {
	PercentileLow   float64 // Lower contrast-stretch percentile, 0-100
	PercentileHigh  float64 // Upper contrast-stretch percentile, 0-100
	SaturationBoost float64 // Chroma multiplier, 1.0 = unchanged
	Gamma           float64 // Gamma correction, 1.0 = off
}

// DefaultOptions matches the deployment tuning for Sentinel-2 quicklooks
func DefaultOptions() Options {
	return Options{
		PercentileLow:   2,
		PercentileHigh:  98,
		SaturationBoost: 1.25,
		Gamma:           1.0,
	}
}

// Apply returns an enhanced copy of img: per-channel percentile
// contrast stretch, then saturation boost, then gamma correction.
func Apply(img *image.RGBA, opts Options) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	copy(out.Pix, img.Pix)

	stretchContrast(out, opts.PercentileLow, opts.PercentileHigh)
	if opts.SaturationBoost != 1.0 {
		boostSaturation(out, opts.SaturationBoost)
	}
	if opts.Gamma != 1.0 && opts.Gamma > 0 {
		applyGamma(out, opts.Gamma)
	}
	return out
}

// stretchContrast linearly maps the [low,high] percentile range of each
// channel onto the full 8-bit range
func stretchContrast(img *image.RGBA, lowPct, highPct float64) {
	for ch := 0; ch < 3; ch++ {
		low, high := channelPercentiles(img, ch, lowPct, highPct)
		if high <= low {
			continue
		}
		scale := 255.0 / float64(high-low)
		for i := ch; i < len(img.Pix); i += 4 {
			v := (float64(img.Pix[i]) - float64(low)) * scale
			img.Pix[i] = clamp8(v)
		}
	}
}

func channelPercentiles(img *image.RGBA, ch int, lowPct, highPct float64) (uint8, uint8) {
	n := len(img.Pix) / 4
	values := make([]uint8, 0, n)
	for i := ch; i < len(img.Pix); i += 4 {
		values = append(values, img.Pix[i])
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	low := values[percentileIndex(len(values), lowPct)]
	high := values[percentileIndex(len(values), highPct)]
	return low, high
}

func percentileIndex(n int, pct float64) int {
	i := int(float64(n-1) * pct / 100.0)
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}

// boostSaturation scales each pixel's chroma around its luma
func boostSaturation(img *image.RGBA, factor float64) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r := float64(img.Pix[i])
		g := float64(img.Pix[i+1])
		b := float64(img.Pix[i+2])

		// Rec. 601 luma
		luma := 0.299*r + 0.587*g + 0.114*b

		img.Pix[i] = clamp8(luma + (r-luma)*factor)
		img.Pix[i+1] = clamp8(luma + (g-luma)*factor)
		img.Pix[i+2] = clamp8(luma + (b-luma)*factor)
	}
}

func applyGamma(img *image.RGBA, gamma float64) {
	// 256-entry lookup, alpha untouched
	var table [256]uint8
	for i := range table {
		table[i] = clamp8(255.0 * math.Pow(float64(i)/255.0, 1.0/gamma))
	}
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i] = table[img.Pix[i]]
		img.Pix[i+1] = table[img.Pix[i+1]]
		img.Pix[i+2] = table[img.Pix[i+2]]
	}
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
