package changemap

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// outputPrefix marks change maps emitted by the inference service
	outputPrefix = "out_"
	// internalPrefix marks files this pipeline wrote itself
	internalPrefix = "changenet"
)

// NotFoundError reports that no usable change map exists in a directory.
// Missing distinguishes an absent directory from one whose contents do
// not qualify; Candidates lists the non-internal files present.
type NotFoundError struct {
	Dir        string
	Missing    bool
	Candidates []string
}

func (e *NotFoundError) Error() string {
	if e.Missing {
		return fmt.Sprintf("output directory not found: %s", e.Dir)
	}
	available := strings.Join(e.Candidates, ", ")
	if available == "" {
		available = "(empty directory or only metadata)"
	}
	return fmt.Sprintf("change map not found in %s. Available files: %s", e.Dir, available)
}

// Load selects and decodes the change detection map from an inference
// output directory.
//
// The service deposits heterogeneous artifacts: out_*.jpg change maps,
// *.response metadata, the raw changenet_output.zip archive. Selection
// runs two passes over the sorted listing: first out_*.jpg, then any
// image not written by the pipeline itself. Files that fail to decode
// are skipped so one corrupt artifact cannot mask a valid one behind it.
func Load(dir string) (*image.Gray, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Dir: dir, Missing: true}
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	// Pass 1: service-named output maps
	for _, name := range names {
		if strings.HasPrefix(name, outputPrefix) && strings.HasSuffix(name, ".jpg") {
			if img := tryDecode(filepath.Join(dir, name)); img != nil {
				fmt.Printf("[*] Loaded change map: %s\n", name)
				return img, nil
			}
		}
	}

	// Pass 2: any image the pipeline did not write itself
	for _, name := range names {
		if isImageName(name) && !strings.HasPrefix(name, internalPrefix) {
			if img := tryDecode(filepath.Join(dir, name)); img != nil {
				fmt.Printf("[*] Loaded change map: %s\n", name)
				return img, nil
			}
		}
	}

	return nil, &NotFoundError{Dir: dir, Candidates: candidateNames(names)}
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// candidateNames filters out pipeline-internal metadata and archives so
// the error message only lists files a user might have expected to load
func candidateNames(names []string) []string {
	var candidates []string
	for _, name := range names {
		if strings.HasSuffix(name, ".response") || strings.HasSuffix(name, ".zip") {
			continue
		}
		if strings.HasPrefix(name, internalPrefix) {
			continue
		}
		candidates = append(candidates, name)
	}
	return candidates
}

// tryDecode opens and decodes a candidate, converting to grayscale.
// Returns nil on any failure; the caller continues scanning.
func tryDecode(path string) *image.Gray {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("[!] Skipping unreadable candidate %s: %v", filepath.Base(path), err)
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		log.Printf("[!] Skipping undecodable candidate %s: %v", filepath.Base(path), err)
		return nil
	}

	return toGray(img)
}

// toGray converts any decoded image to single-channel grayscale
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
