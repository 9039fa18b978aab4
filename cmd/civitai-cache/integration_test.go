package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/downloader"
	"go-civitai-cache/internal/index"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

// TestCacheWorkflow drives the full path from an API payload to files on
// disk, a database entry, and a searchable index document.
func TestCacheWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer fileServer.Close()

	base := t.TempDir()

	// 1. Classify a list-page model payload.
	payload := `{
		"id": 456,
		"name": "Test Model",
		"type": "Checkpoint",
		"creator": {"username": "someone"},
		"modelVersions": [{
			"id": 789,
			"name": "v1.0",
			"baseModel": "SD 1.5",
			"index": 0,
			"availability": "Public",
			"files": [{"id": 123, "name": "test model.safetensors", "downloadUrl": "` + fileServer.URL + `/file/123", "primary": true}],
			"images": [{"url": "` + fileServer.URL + `/width=1024/1743606.jpeg"}]
		}]
	}`

	var model models.Model
	require.NoError(t, json.Unmarshal([]byte(payload), &model), "Should decode model payload")
	assert.Equal(t, models.ModelKindList, model.Kind(), "List-page payload should classify as list")

	media, failures := models.NormalizeMedia(model.Versions[0].Media)
	require.Empty(t, failures, "Media ids should recover from URLs")
	require.Len(t, media, 1)
	assert.Equal(t, 1743606, *media[0].ID, "Media id should be recovered from the URL filename")

	// 2. Download the version's file and media into the layout.
	layout := paths.NewLayout(base)
	vl := paths.NewVersionLayout(layout, model.Type, model.ID, &model.Versions[0])

	d := downloader.NewDownloader(fileServer.Client(), "")

	file, err := vl.FindFile(123)
	require.NoError(t, err)
	fileTarget := vl.FilePath(*file)
	assert.Equal(t, filepath.Join(base, "Checkpoint", "456", "789", "123_test model.safetensors"), fileTarget,
		"File path should follow the deterministic layout")

	_, err = d.DownloadFile(context.Background(), fileTarget, file.DownloadUrl, file.Hashes)
	require.NoError(t, err, "Should download model file")

	mediaTarget, err := vl.MediaPath(media[0])
	require.NoError(t, err)
	_, err = d.DownloadMedia(context.Background(), mediaTarget, media[0].URL)
	require.NoError(t, err, "Should download media file")

	// 3. The on-disk scans see exactly what was downloaded.
	present, err := vl.FilesOnDisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{123}, present, "Downloaded file should be reported present")

	entries, err := vl.MediaOnDisk(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1743606, entries[0].ID, "Scanner should recover the media id from the filename")

	// 4. Persist the cache entry and index it.
	db, err := database.Open(filepath.Join(base, "civitai.db"))
	require.NoError(t, err, "Should open database")
	defer db.Close()

	core := model.Core()
	entry := models.CacheEntry{
		Creator:   core.Creator,
		ModelName: core.Name,
		ModelType: core.Type,
		ModelID:   core.ID,
		Version:   core.Versions[0],
		Status:    models.StatusDownloaded,
	}
	require.NoError(t, db.PutEntry(entry), "Should store cache entry")

	got, err := db.GetEntry(789)
	require.NoError(t, err, "Should retrieve cache entry")
	assert.Equal(t, "Test Model", got.ModelName)
	assert.Equal(t, models.StatusDownloaded, got.Status)

	idx, err := index.OpenOrCreateIndex(filepath.Join(base, "civitai.bleve"))
	require.NoError(t, err, "Should create search index")
	defer idx.Close()

	require.NoError(t, index.IndexCacheEntry(idx, got), "Should index cache entry")

	result, err := index.Search(idx, "test", 10)
	require.NoError(t, err, "Should search index")
	require.EqualValues(t, 1, result.Total, "Entry should be findable")
	assert.Equal(t, "789", result.Hits[0].ID)
}
