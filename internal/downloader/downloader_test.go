package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"

	"go-civitai-cache/internal/models"
)

func TestDownloadFile(t *testing.T) {
	content := []byte("model weights payload")
	sum := blake3.Sum256(content)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "test-key")
	target := filepath.Join(t.TempDir(), "Checkpoint", "456", "789", "123_test model.safetensors")

	got, err := d.DownloadFile(context.Background(), target, server.URL, models.Hashes{BLAKE3: hex.EncodeToString(sum[:])})
	if err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	// The file lands at exactly the requested path; no server-driven renames.
	if got != target {
		t.Errorf("Expected final path %q, got %q", target, got)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("Downloaded content mismatch")
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Failed to read target dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the downloaded file in target dir, got %d entries", len(entries))
	}

	// A second call short-circuits on the verified existing file.
	if _, err := d.DownloadFile(context.Background(), target, server.URL, models.Hashes{BLAKE3: hex.EncodeToString(sum[:])}); err != nil {
		t.Fatalf("Second DownloadFile failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("Expected 1 HTTP request, got %d", requestCount)
	}
}

func TestDownloadFileHashMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("corrupted content"))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "")
	target := filepath.Join(t.TempDir(), "123_file.safetensors")

	sum := blake3.Sum256([]byte("expected content"))
	_, err := d.DownloadFile(context.Background(), target, server.URL, models.Hashes{BLAKE3: hex.EncodeToString(sum[:])})
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Expected ErrHashMismatch, got %v", err)
	}
}

func TestDownloadFileBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "")
	dir := t.TempDir()
	target := filepath.Join(dir, "123_file.safetensors")

	_, err := d.DownloadFile(context.Background(), target, server.URL, models.Hashes{})
	if !errors.Is(err, ErrHttpStatus) {
		t.Errorf("Expected ErrHttpStatus, got %v", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("Expected no file at target path after failed download")
	}
}

func TestDownloadFileExistingWithoutHashes(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "")
	target := filepath.Join(t.TempDir(), "1743606.jpeg")
	if err := os.WriteFile(target, []byte("already here"), 0o600); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	// Media carries no hashes: presence alone short-circuits.
	if _, err := d.DownloadMedia(context.Background(), target, server.URL); err != nil {
		t.Fatalf("DownloadMedia failed: %v", err)
	}
	if requestCount != 0 {
		t.Errorf("Expected no HTTP requests for existing media, got %d", requestCount)
	}
}

func TestDownloadFileReplacesCorruptExisting(t *testing.T) {
	content := []byte("good content")
	sum := blake3.Sum256(content)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "")
	target := filepath.Join(t.TempDir(), "123_file.safetensors")
	if err := os.WriteFile(target, []byte("stale corrupt content"), 0o600); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	if _, err := d.DownloadFile(context.Background(), target, server.URL, models.Hashes{BLAKE3: hex.EncodeToString(sum[:])}); err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != string(content) {
		t.Error("Expected corrupt existing file to be replaced")
	}
}
