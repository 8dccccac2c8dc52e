package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// searchURL is the Copernicus Data Space Ecosystem catalogue endpoint
// for Sentinel-2 products
const searchURL = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/Sentinel2/search.json"

// searchWindowDays widens the catalogue query around each target date
const searchWindowDays = 15

// Downloader fetches before/after Sentinel-2 snapshots of one area of
// interest. Any failure along the way degrades to a synthetic terrain
// image so the rest of the pipeline stays runnable offline.
type Downloader struct {
	Bounds        Bounds
	ImageSize     int     // Output resolution (SIZE x SIZE), model input
	CloudCoverMax float64 // Maximum acceptable cloud cover percentage

	token     string
	username  string
	password  string
	searchURL string
	client    *http.Client
}

// NewDownloader creates a downloader for the given area. Token auth is
// preferred over basic auth when both are supplied; both are optional.
func NewDownloader(bounds Bounds, imageSize int, token, username, password string) *Downloader {
	return &Downloader{
		Bounds:        bounds,
		ImageSize:     imageSize,
		CloudCoverMax: 20,
		token:         token,
		username:      username,
		password:      password,
		searchURL:     searchURL,
		client:        &http.Client{Timeout: 2 * time.Minute},
	}
}

// DownloadPair fetches the before and after snapshots concurrently.
// The before image is dated lookbackDays before now.
func (d *Downloader) DownloadPair(ctx context.Context, outputDir string, now time.Time, lookbackDays int) (beforePath, afterPath string, err error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create input directory: %w", err)
	}

	beforeDate := now.AddDate(0, 0, -lookbackDays)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		beforePath, err = d.fetch(gctx, beforeDate, outputDir, "before.jpg")
		return err
	})
	g.Go(func() error {
		var err error
		afterPath, err = d.fetch(gctx, now, outputDir, "after.jpg")
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return beforePath, afterPath, nil
}

// fetch searches the catalogue near targetDate and downloads the best
// quicklook. Falls back to a synthetic image on any failure.
func (d *Downloader) fetch(ctx context.Context, targetDate time.Time, outputDir, filename string) (string, error) {
	feat, err := d.search(ctx, targetDate)
	if err != nil {
		log.Printf("[!] Catalogue search failed near %s: %v", targetDate.Format("2006-01-02"), err)
		return d.writeSynthetic(outputDir, filename)
	}
	if feat == nil {
		fmt.Printf("[*] No cloud-free image near %s, using synthetic\n", targetDate.Format("2006-01-02"))
		return d.writeSynthetic(outputDir, filename)
	}

	quicklook := feat.quicklookURL()
	if quicklook == "" {
		log.Printf("[!] No quicklook URL for %s, using synthetic", feat.title())
		return d.writeSynthetic(outputDir, filename)
	}

	path, err := d.downloadImage(ctx, quicklook, outputDir, filename)
	if err != nil {
		log.Printf("[!] Quicklook download failed: %v", err)
		return d.writeSynthetic(outputDir, filename)
	}
	fmt.Printf("[+] Downloaded %s (%s)\n", filename, feat.title())
	return path, nil
}

// feature is one catalogue search hit
type feature struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	Links      []struct {
		Href string `json:"href"`
	} `json:"links"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

func (f *feature) title() string {
	if t, ok := f.Properties["title"].(string); ok {
		return t
	}
	return f.ID
}

func (f *feature) cloudCover() (float64, bool) {
	for _, key := range []string{"cloudCover", "cloud_cover", "eo:cloud_cover"} {
		if v, ok := f.Properties[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// quicklookURL scans links, well-known property keys and assets for a
// browse image URL
func (f *feature) quicklookURL() string {
	var candidates []string
	for _, l := range f.Links {
		candidates = append(candidates, l.Href)
	}
	for _, key := range []string{"quicklook", "thumbnail", "browseURL", "browse"} {
		if v, ok := f.Properties[key].(string); ok {
			candidates = append(candidates, v)
		}
	}
	for _, a := range f.Assets {
		candidates = append(candidates, a.Href)
	}
	for _, v := range f.Properties {
		if s, ok := v.(string); ok && strings.HasPrefix(strings.ToLower(s), "http") {
			candidates = append(candidates, s)
		}
	}

	for _, c := range candidates {
		lower := strings.ToLower(c)
		for _, ext := range []string{".jpg", ".jpeg", ".png"} {
			if strings.Contains(lower, ext) {
				return c
			}
		}
	}
	return ""
}

// search queries the catalogue and returns the hit with the lowest
// cloud cover, or nil when nothing matches
func (d *Downloader) search(ctx context.Context, targetDate time.Time) (*feature, error) {
	params := url.Values{}
	params.Set("startDate", targetDate.AddDate(0, 0, -searchWindowDays).Format("2006-01-02T00:00:00Z"))
	params.Set("completionDate", targetDate.AddDate(0, 0, searchWindowDays).Format("2006-01-02T23:59:59Z"))
	params.Set("cloudCover", fmt.Sprintf("[0,%d]", int(d.CloudCoverMax)))
	params.Set("box", fmt.Sprintf("%f,%f,%f,%f", d.Bounds.MinLon, d.Bounds.MinLat, d.Bounds.MaxLon, d.Bounds.MaxLat))
	params.Set("maxRecords", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalogue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalogue returned status %d", resp.StatusCode)
	}

	var result struct {
		Features []feature `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue response: %w", err)
	}
	if len(result.Features) == 0 {
		return nil, nil
	}

	best := &result.Features[0]
	bestCloud, ok := best.cloudCover()
	for i := 1; i < len(result.Features); i++ {
		f := &result.Features[i]
		if cloud, has := f.cloudCover(); has && (!ok || cloud < bestCloud) {
			best, bestCloud, ok = f, cloud, true
		}
	}
	return best, nil
}

func (d *Downloader) authorize(req *http.Request) {
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	} else if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}
}

// downloadImage fetches a quicklook, resizes it to the model input
// resolution and saves it as JPEG
func (d *Downloader) downloadImage(ctx context.Context, imgURL, outputDir, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("quicklook is not a valid image: %w", err)
	}

	resized := Resize(img, d.ImageSize, d.ImageSize)

	outputPath := filepath.Join(outputDir, filename)
	if err := writeJPEG(outputPath, resized); err != nil {
		return "", err
	}
	return outputPath, nil
}

// writeSynthetic saves a generated terrain image at model resolution
func (d *Downloader) writeSynthetic(outputDir, filename string) (string, error) {
	img := SyntheticTerrain(d.ImageSize)
	outputPath := filepath.Join(outputDir, filename)
	if err := writeJPEG(outputPath, img); err != nil {
		return "", err
	}
	fmt.Printf("[*] Created synthetic image: %s\n", outputPath)
	return outputPath, nil
}

// Resize scales an image to width x height with Catmull-Rom resampling
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
