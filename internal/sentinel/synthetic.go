package sentinel

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

// SyntheticTerrain generates a plausible Sentinel-2 style RGB tile for
// demo and offline runs. Low-frequency sin/cos fields stand in for the
// red/green/blue bands, with mild Gaussian noise on top.
func SyntheticTerrain(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	r := rand.New(rand.NewSource(int64(size)))

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Map pixel coordinates onto a 0..4 radian field
			fx := float64(x) / float64(size) * 4
			fy := float64(y) / float64(size) * 4

			red := 100 + 50*math.Sin(fx)*math.Cos(fy)
			green := 120 + 60*math.Sin(fx+0.5)*math.Cos(fy+0.5)
			blue := 80 + 40*math.Sin(fx+1)*math.Cos(fy+1)

			img.SetRGBA(x, y, color.RGBA{
				R: clampNoise(red, r),
				G: clampNoise(green, r),
				B: clampNoise(blue, r),
				A: 255,
			})
		}
	}
	return img
}

// clampNoise adds sensor-like noise and clamps to 8 bits
func clampNoise(v float64, r *rand.Rand) uint8 {
	v += r.NormFloat64() * 5
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
