package changenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

const assetsURL = "https://api.nvcf.nvidia.com/v2/nvcf/assets"

// archiveName is the file the raw inference response is saved under
// before extraction; the change-map loader knows to skip it.
const archiveName = "changenet_output.zip"

// Client invokes the NVIDIA Visual ChangeNet function through NVCF.
// Images are uploaded as assets first, then referenced by ID in the
// inference call; the response body is a zip of output artifacts.
type Client struct {
	apiURL    string
	apiKey    string
	assetsURL string
	client    *http.Client
}

func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL:    apiURL,
		apiKey:    apiKey,
		assetsURL: assetsURL,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type authorizeRequest struct {
	ContentType string `json:"contentType"`
	Description string `json:"description"`
}

type authorizeResponse struct {
	UploadURL string `json:"uploadUrl"`
	AssetID   string `json:"assetId"`
}

// UploadAsset registers an image with NVCF and uploads its bytes,
// returning the asset ID to reference in an inference call
func (c *Client) UploadAsset(ctx context.Context, imagePath, description string) (string, error) {
	binary, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	body, err := json.Marshal(authorizeRequest{
		ContentType: "image/jpeg",
		Description: description,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal asset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.assetsURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create asset request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("asset authorize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asset authorize returned status %d", resp.StatusCode)
	}

	var auth authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to decode asset authorize response: %w", err)
	}

	upload, err := http.NewRequestWithContext(ctx, http.MethodPut, auth.UploadURL, bytes.NewReader(binary))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	upload.Header.Set("x-amz-meta-nvcf-asset-description", description)
	upload.Header.Set("content-type", "image/jpeg")

	uploadResp, err := c.client.Do(upload)
	if err != nil {
		return "", fmt.Errorf("asset upload failed: %w", err)
	}
	defer uploadResp.Body.Close()

	if uploadResp.StatusCode < 200 || uploadResp.StatusCode >= 300 {
		return "", fmt.Errorf("asset upload returned status %d", uploadResp.StatusCode)
	}

	return auth.AssetID, nil
}

// uploadPair uploads both images concurrently
func (c *Client) uploadPair(ctx context.Context, referenceImage, testImage string) (referenceID, testID string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		referenceID, err = c.UploadAsset(gctx, referenceImage, "Reference Image")
		return err
	})
	g.Go(func() error {
		var err error
		testID, err = c.UploadAsset(gctx, testImage, "Test Image")
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return referenceID, testID, nil
}

type inferenceRequest struct {
	ReferenceImage string `json:"reference_image"`
	TestImage      string `json:"test_image"`
}

// Run uploads the before/after pair, invokes Visual ChangeNet and
// extracts the returned artifact archive into outputDir. The change-map
// loader consumes the extracted files.
func (c *Client) Run(ctx context.Context, referenceImage, testImage, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	referenceID, testID, err := c.uploadPair(ctx, referenceImage, testImage)
	if err != nil {
		return err
	}

	body, err := json.Marshal(inferenceRequest{
		ReferenceImage: referenceID,
		TestImage:      testID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create inference request: %w", err)
	}

	assetList := referenceID + "," + testID
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("NVCF-INPUT-ASSET-REFERENCES", assetList)
	req.Header.Set("NVCF-FUNCTION-ASSET-IDS", assetList)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference returned status %d", resp.StatusCode)
	}

	zipPath := filepath.Join(outputDir, archiveName)
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to save archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	return extractArchive(zipPath, outputDir)
}
