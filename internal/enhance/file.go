package enhance

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
)

// File enhances an image on disk in place, re-encoding as JPEG
func File(path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	enhanced := Apply(rgba, opts)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to rewrite %s: %w", path, err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, enhanced, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
