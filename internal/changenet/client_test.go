package changenet

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient points a Client at a local test server
func newTestClient(serverURL string) *Client {
	return &Client{
		apiURL:    serverURL + "/infer",
		apiKey:    "test-key",
		assetsURL: serverURL + "/assets",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// buildZip assembles an in-memory archive with the given entries
func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create zip entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("Failed to write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to finalize zip: %v", err)
	}
	return buf.Bytes()
}

func TestRunFullHandshake(t *testing.T) {
	var assetCounter int64
	var mu sync.Mutex
	uploads := make(map[string][]byte)
	var inferHeaders http.Header

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Unexpected method %s on /assets", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Missing bearer token on authorize: %q", auth)
		}

		var req authorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Bad authorize body: %v", err)
		}

		id := fmt.Sprintf("asset-%d", atomic.AddInt64(&assetCounter, 1))
		json.NewEncoder(w).Encode(authorizeResponse{
			UploadURL: server.URL + "/upload/" + id,
			AssetID:   id,
		})
	})

	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Unexpected method %s on upload", r.Method)
		}
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		mu.Lock()
		uploads[strings.TrimPrefix(r.URL.Path, "/upload/")] = buf.Bytes()
		mu.Unlock()
	})

	archive := buildZip(t, map[string][]byte{
		"out_0.jpg":         []byte("fake change map"),
		"metadata.response": []byte("meta"),
	})
	mux.HandleFunc("/infer", func(w http.ResponseWriter, r *http.Request) {
		inferHeaders = r.Header.Clone()
		w.Write(archive)
	})

	workDir := t.TempDir()
	refPath := filepath.Join(workDir, "before.jpg")
	testPath := filepath.Join(workDir, "after.jpg")
	os.WriteFile(refPath, []byte("before bytes"), 0644)
	os.WriteFile(testPath, []byte("after bytes"), 0644)

	outputDir := filepath.Join(workDir, "output")
	client := newTestClient(server.URL)
	if err := client.Run(context.Background(), refPath, testPath, outputDir); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(uploads) != 2 {
		t.Errorf("Expected 2 asset uploads, got %d", len(uploads))
	}

	refs := inferHeaders.Get("NVCF-INPUT-ASSET-REFERENCES")
	if refs == "" || !strings.Contains(refs, ",") {
		t.Errorf("Inference call missing asset references: %q", refs)
	}
	if got := inferHeaders.Get("NVCF-FUNCTION-ASSET-IDS"); got != refs {
		t.Errorf("Function asset IDs %q differ from references %q", got, refs)
	}

	// Archive saved and extracted alongside
	for _, name := range []string{archiveName, "out_0.jpg", "metadata.response"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("Expected %s in output directory: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "out_0.jpg"))
	if err != nil || string(data) != "fake change map" {
		t.Errorf("Extracted change map corrupted: %q, %v", data, err)
	}
}

func TestRunInferenceError(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authorizeResponse{
			UploadURL: server.URL + "/upload/x",
			AssetID:   "x",
		})
	})
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/infer", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	})

	workDir := t.TempDir()
	img := filepath.Join(workDir, "img.jpg")
	os.WriteFile(img, []byte("img"), 0644)

	client := newTestClient(server.URL)
	err := client.Run(context.Background(), img, img, filepath.Join(workDir, "out"))
	if err == nil {
		t.Fatal("Expected error on 502 inference response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Error should carry the status code: %v", err)
	}
}

func TestUploadAssetAuthorizeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	workDir := t.TempDir()
	img := filepath.Join(workDir, "img.jpg")
	os.WriteFile(img, []byte("img"), 0644)

	client := newTestClient(server.URL)
	_, err := client.UploadAsset(context.Background(), img, "Reference Image")
	if err == nil {
		t.Fatal("Expected error on 403 authorize response")
	}
}

func TestExtractArchiveRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, _ := w.Create("../escape.txt")
	f.Write([]byte("outside"))
	w.Close()
	os.WriteFile(zipPath, buf.Bytes(), 0644)

	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0755)

	if err := extractArchive(zipPath, outDir); err == nil {
		t.Fatal("Expected error for entry escaping output directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Error("Escaping entry was written outside the output directory")
	}
}

func TestExtractArchiveNestedDirs(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "nested.zip")
	os.WriteFile(zipPath, buildZip(t, map[string][]byte{
		"maps/out_0.jpg": []byte("nested map"),
	}), 0644)

	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0755)

	if err := extractArchive(zipPath, outDir); err != nil {
		t.Fatalf("extractArchive failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "maps", "out_0.jpg"))
	if err != nil || string(data) != "nested map" {
		t.Errorf("Nested entry not extracted: %q, %v", data, err)
	}
}
