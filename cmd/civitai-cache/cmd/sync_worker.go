package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/downloader"
	"go-civitai-cache/internal/index"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

type syncStats struct {
	filesDownloaded atomic.Int64
	mediaDownloaded atomic.Int64
	errors          atomic.Int64
	processed       atomic.Int64

	// modelMetaWritten dedupes model-level meta writes across workers.
	modelMetaWritten sync.Map
}

type syncWorkerDeps struct {
	db         *database.DB
	index      bleve.Index
	downloader *downloader.Downloader
	layout     paths.Layout
	cfg        models.Config
	total      int
	stats      *syncStats
}

func syncWorker(ctx context.Context, id int, jobs <-chan versionJob, wg *sync.WaitGroup, writer *uilive.Writer, deps syncWorkerDeps) {
	defer wg.Done()
	logPrefix := fmt.Sprintf("Worker-%d", id)

	for job := range jobs {
		if ctx.Err() != nil {
			log.Debugf("[%s] Context cancelled, draining remaining jobs.", logPrefix)
			continue
		}

		done := deps.stats.processed.Add(1)
		fmt.Fprintf(writer, "[%s] %s / %s (%d/%d)\n",
			logPrefix, job.ModelCore.Name, job.Version.Name, done, deps.total)

		if err := reconcileVersion(ctx, logPrefix, job, deps); err != nil {
			deps.stats.errors.Add(1)
			log.WithError(err).Errorf("[%s] Failed to reconcile version %d of model %d",
				logPrefix, job.Version.ID, job.ModelCore.ID)
		}
	}
	log.Debugf("[%s] Exiting", logPrefix)
}

// reconcileVersion brings one version's on-disk and database state in line
// with the API payload: metadata files, model files, media, cache entry, and
// search index document.
func reconcileVersion(ctx context.Context, logPrefix string, job versionJob, deps syncWorkerDeps) error {
	vl := paths.NewVersionLayout(deps.layout, job.ModelType, job.ModelCore.ID, &job.Version)

	if err := os.MkdirAll(vl.Dir(), 0o750); err != nil {
		recordEntryError(deps.db, job, deps.layout, fmt.Sprintf("mkdir failed: %v", err))
		return fmt.Errorf("creating version directory %s: %w", vl.Dir(), err)
	}

	if deps.cfg.Sync.SaveMetadata {
		if err := saveVersionMeta(vl, job.Version); err != nil {
			log.WithError(err).Warnf("[%s] Could not write version metadata", logPrefix)
		}
		saveModelMetaOnce(deps, job)
	}

	var firstErr error

	if !deps.cfg.Sync.MetaOnly {
		if err := downloadVersionFiles(ctx, logPrefix, vl, job, deps); err != nil {
			firstErr = err
		}
		if deps.cfg.Sync.SaveMedia {
			if err := downloadVersionMedia(ctx, logPrefix, vl, job, deps); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	entry := buildCacheEntry(job, deps.layout, firstErr)
	if deps.cfg.Sync.MetaOnly {
		entry.Status = models.StatusPending
	}
	if err := deps.db.PutEntry(entry); err != nil {
		log.WithError(err).Errorf("[%s] Failed to persist cache entry for version %d", logPrefix, job.Version.ID)
		if firstErr == nil {
			firstErr = err
		}
	} else if err := index.IndexCacheEntry(deps.index, entry); err != nil {
		log.WithError(err).Warnf("[%s] Failed to index cache entry for version %d", logPrefix, job.Version.ID)
	}

	return firstErr
}

func downloadVersionFiles(ctx context.Context, logPrefix string, vl paths.VersionLayout, job versionJob, deps syncWorkerDeps) error {
	var firstErr error
	for _, file := range job.Version.Files {
		if deps.cfg.Sync.PrimaryOnly && !file.Primary {
			log.Debugf("[%s] Skipping non-primary file %s", logPrefix, file.Name)
			continue
		}
		if file.DownloadUrl == "" {
			log.Warnf("[%s] File %d (%s) has no download URL, skipping.", logPrefix, file.ID, file.Name)
			continue
		}

		target := vl.FilePath(file)
		start := time.Now()
		if _, err := deps.downloader.DownloadFile(ctx, target, file.DownloadUrl, file.Hashes); err != nil {
			log.WithError(err).Errorf("[%s] Download failed for %s", logPrefix, target)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deps.stats.filesDownloaded.Add(1)
		log.Debugf("[%s] Downloaded %s in %v", logPrefix, filepath.Base(target), time.Since(start))
	}
	return firstErr
}

func downloadVersionMedia(ctx context.Context, logPrefix string, vl paths.VersionLayout, job versionJob, deps syncWorkerDeps) error {
	var firstErr error
	for _, item := range job.Version.Media {
		target, err := vl.MediaPath(item)
		if err != nil {
			log.WithError(err).Warnf("[%s] Cannot derive media filename for %s, skipping.", logPrefix, item.URL)
			continue
		}
		if _, err := deps.downloader.DownloadMedia(ctx, target, item.URL); err != nil {
			log.WithError(err).Errorf("[%s] Media download failed for %s", logPrefix, target)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deps.stats.mediaDownloaded.Add(1)
	}
	return firstErr
}

// saveVersionMeta writes the version's canonical projection next to its files.
func saveVersionMeta(vl paths.VersionLayout, version models.ModelVersion) error {
	data, err := json.MarshalIndent(version.Core(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling version metadata: %w", err)
	}
	if err := os.WriteFile(vl.MetaPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing version metadata %s: %w", vl.MetaPath(), err)
	}
	return nil
}

// saveModelMetaOnce writes the model's projection into the model directory
// the first time any of its versions is processed.
func saveModelMetaOnce(deps syncWorkerDeps, job versionJob) {
	if _, loaded := deps.stats.modelMetaWritten.LoadOrStore(job.ModelCore.ID, struct{}{}); loaded {
		return
	}

	metaPath := deps.layout.ModelMetaPath(job.ModelType, job.ModelCore.ID)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o750); err != nil {
		log.WithError(err).Warnf("Could not create model directory for metadata: %s", metaPath)
		return
	}

	data, err := json.MarshalIndent(job.ModelCore, "", "  ")
	if err != nil {
		log.WithError(err).Warnf("Could not marshal model metadata for model %d", job.ModelCore.ID)
		return
	}
	if err := os.WriteFile(metaPath, data, 0o600); err != nil {
		log.WithError(err).Warnf("Could not write model metadata %s", metaPath)
	}
}

func buildCacheEntry(job versionJob, layout paths.Layout, downloadErr error) models.CacheEntry {
	versionDir := layout.VersionDir(job.ModelType, job.ModelCore.ID, job.Version.ID)
	folder, err := filepath.Rel(layout.Base(), versionDir)
	if err != nil {
		folder = versionDir
	}

	entry := models.CacheEntry{
		Creator:   job.ModelCore.Creator,
		ModelName: job.ModelCore.Name,
		ModelType: job.ModelType,
		ModelID:   job.ModelCore.ID,
		Folder:    folder,
		Version:   job.Version.Core(),
		Status:    models.StatusDownloaded,
		Timestamp: time.Now().Unix(),
	}
	if downloadErr != nil {
		entry.Status = models.StatusError
		entry.ErrorDetails = downloadErr.Error()
	}
	return entry
}

// recordEntryError persists an Error entry when reconciliation fails before
// any download was attempted.
func recordEntryError(db *database.DB, job versionJob, layout paths.Layout, details string) {
	entry := buildCacheEntry(job, layout, nil)
	entry.Status = models.StatusError
	entry.ErrorDetails = details
	if err := db.PutEntry(entry); err != nil {
		log.WithError(err).Errorf("Failed to record error entry for version %d", job.Version.ID)
	}
}
