package paths

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-civitai-cache/internal/models"
)

func testModel() *models.Model {
	return &models.Model{
		ID:   456,
		Name: "Test Model",
		Type: "Checkpoint",
		Versions: []models.ModelVersion{
			{
				ID:   789,
				Name: "v1.0",
				Files: []models.File{
					{ID: 123, Name: "test model.safetensors"},
					{ID: 124, Name: "test model.ckpt"},
				},
			},
		},
	}
}

func TestModelLayoutFindVersion(t *testing.T) {
	ml := NewModelLayout(NewLayout("/cache"), testModel())

	vl, err := ml.FindVersion(789)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got, want := vl.Dir(), filepath.Join("/cache", "Checkpoint", "456", "789"); got != want {
		t.Errorf("Expected version dir %q, got %q", want, got)
	}
}

func TestModelLayoutFindVersionNotFound(t *testing.T) {
	ml := NewModelLayout(NewLayout("/cache"), testModel())

	_, err := ml.FindVersion(999)
	if err == nil {
		t.Fatal("Expected an error for unknown version")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected error to wrap ErrNotFound, got %v", err)
	}
	// The message identifies both the searched version and the model.
	if !strings.Contains(err.Error(), "999") {
		t.Errorf("Expected error to name version 999: %v", err)
	}
	if !strings.Contains(err.Error(), "456") {
		t.Errorf("Expected error to name model 456: %v", err)
	}
}

func TestVersionLayoutLookupsAndPaths(t *testing.T) {
	ml := NewModelLayout(NewLayout("/cache"), testModel())
	vl, err := ml.FindVersion(789)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	file, err := vl.FindFile(123)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got := vl.FilePath(*file)
	want := filepath.Join("/cache", "Checkpoint", "456", "789", "123_test model.safetensors")
	if got != want {
		t.Errorf("Expected file path %q, got %q", want, got)
	}

	if _, err := vl.FindFile(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown file, got %v", err)
	}
	if _, err := vl.FindMedia(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown media, got %v", err)
	}

	if got, want := vl.MetaPath(), filepath.Join("/cache", "Checkpoint", "456", "789", "789.meta"); got != want {
		t.Errorf("Expected meta path %q, got %q", want, got)
	}
	if got, want := vl.MediaDir(), filepath.Join("/cache", "Checkpoint", "456", "789", "media"); got != want {
		t.Errorf("Expected media dir %q, got %q", want, got)
	}
}

func TestVersionLayoutFilesOnDisk(t *testing.T) {
	base := t.TempDir()
	ml := NewModelLayout(NewLayout(base), testModel())
	vl, err := ml.FindVersion(789)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Materialize only the second file.
	file, err := vl.FindFile(124)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	target := vl.FilePath(*file)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		t.Fatalf("Failed to create version dir: %v", err)
	}
	if err := os.WriteFile(target, []byte("weights"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	present, err := vl.FilesOnDisk(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(present) != 1 || present[0] != 124 {
		t.Errorf("Expected [124], got %v", present)
	}
}

func TestVersionLayoutMediaOnDisk(t *testing.T) {
	base := t.TempDir()
	ml := NewModelLayout(NewLayout(base), testModel())
	vl, err := ml.FindVersion(789)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// No media directory yet: normal empty state.
	entries, err := vl.MediaOnDisk(context.Background())
	if err != nil || len(entries) != 0 {
		t.Fatalf("Expected empty result before download, got %v / %v", entries, err)
	}

	if err := os.MkdirAll(vl.MediaDir(), 0o700); err != nil {
		t.Fatalf("Failed to create media dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(vl.MediaDir(), "1743606.jpeg"), []byte("img"), 0o600); err != nil {
		t.Fatalf("Failed to write media: %v", err)
	}

	entries, err = vl.MediaOnDisk(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 1743606 {
		t.Errorf("Expected recovered id 1743606, got %v", entries)
	}
}
