package paths

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/models"
)

// ErrNotFound is returned by the facade lookups when no entity matches the
// searched identifier. An expected outcome for callers probing optional
// relationships, not an exceptional one.
var ErrNotFound = errors.New("not found")

// ModelLayout composes a Layout with one reconciled model to answer
// higher-level path and lookup queries.
type ModelLayout struct {
	layout Layout
	model  *models.Model
}

// NewModelLayout binds a layout to a model.
func NewModelLayout(layout Layout, model *models.Model) ModelLayout {
	return ModelLayout{layout: layout, model: model}
}

// Dir returns the model's directory.
func (ml ModelLayout) Dir() string {
	return ml.layout.ModelDir(ml.model.Type, ml.model.ID)
}

// MetaPath returns the model's metadata file path.
func (ml ModelLayout) MetaPath() string {
	return ml.layout.ModelMetaPath(ml.model.Type, ml.model.ID)
}

// FindVersion looks up a version by identifier across whatever shapes the
// model carries. First match wins on duplicates.
func (ml ModelLayout) FindVersion(versionID int) (VersionLayout, error) {
	version, ok := models.FindVersionByID(ml.model.Versions, versionID)
	if !ok {
		return VersionLayout{}, fmt.Errorf("version %d %w in model %d", versionID, ErrNotFound, ml.model.ID)
	}
	return VersionLayout{
		layout:    ml.layout,
		modelType: ml.model.Type,
		modelID:   ml.model.ID,
		version:   version,
	}, nil
}

// Version binds the layout to a version that is already in hand, for callers
// holding a standalone-endpoint payload rather than a whole model.
func (ml ModelLayout) Version(version *models.ModelVersion) VersionLayout {
	return VersionLayout{
		layout:    ml.layout,
		modelType: ml.model.Type,
		modelID:   ml.model.ID,
		version:   version,
	}
}

// VersionLayout composes a Layout with one version of a known model.
type VersionLayout struct {
	layout    Layout
	modelType string
	modelID   int
	version   *models.ModelVersion
}

// NewVersionLayout binds a layout to a version whose owning model identity is
// known to the caller (e.g. restored from a cache entry).
func NewVersionLayout(layout Layout, modelType string, modelID int, version *models.ModelVersion) VersionLayout {
	return VersionLayout{layout: layout, modelType: modelType, modelID: modelID, version: version}
}

// Version exposes the underlying version.
func (vl VersionLayout) Version() *models.ModelVersion {
	return vl.version
}

// Dir returns the version's directory.
func (vl VersionLayout) Dir() string {
	return vl.layout.VersionDir(vl.modelType, vl.modelID, vl.version.ID)
}

// MetaPath returns the version's metadata file path.
func (vl VersionLayout) MetaPath() string {
	return vl.layout.VersionMetaPath(vl.modelType, vl.modelID, vl.version.ID)
}

// MediaDir returns the version's media subdirectory.
func (vl VersionLayout) MediaDir() string {
	return vl.layout.VersionMediaDir(vl.modelType, vl.modelID, vl.version.ID)
}

// FindFile looks up one of the version's files by identifier.
func (vl VersionLayout) FindFile(fileID int) (*models.File, error) {
	file, ok := models.FindFileByID(vl.version.Files, fileID)
	if !ok {
		return nil, fmt.Errorf("file %d %w in version %d", fileID, ErrNotFound, vl.version.ID)
	}
	return file, nil
}

// FindMedia looks up one of the version's media items by identifier.
func (vl VersionLayout) FindMedia(mediaID int) (*models.Media, error) {
	item, ok := models.FindMediaByID(vl.version.Media, mediaID)
	if !ok {
		return nil, fmt.Errorf("media %d %w in version %d", mediaID, ErrNotFound, vl.version.ID)
	}
	return item, nil
}

// FilePath returns the expected on-disk path for one of the version's files.
func (vl VersionLayout) FilePath(file models.File) string {
	return vl.layout.FilePath(vl.modelType, vl.modelID, vl.version.ID, file.ID, file.Name)
}

// MediaPath returns the expected on-disk path for one of the version's media
// items. Fails with ErrURLFilename when the source URL has no filename.
func (vl VersionLayout) MediaPath(item models.Media) (string, error) {
	return vl.layout.MediaPath(vl.modelType, vl.modelID, vl.version.ID, item.URL)
}

// FilesOnDisk computes each file's expected path and checks its existence,
// returning the identifiers of files confirmed present, sorted ascending. An
// individual stat failure degrades to "not present"; the scan itself never
// aborts. The context is checked between files.
func (vl VersionLayout) FilesOnDisk(ctx context.Context) ([]int, error) {
	present := make([]int, 0, len(vl.version.Files))
	for _, file := range vl.version.Files {
		if err := ctx.Err(); err != nil {
			return present, err
		}
		path := vl.FilePath(file)
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.WithError(err).Debugf("Treating unreadable path as absent: %s", path)
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		present = append(present, file.ID)
	}
	sort.Ints(present)
	return present, nil
}

// MediaOnDisk scans the version's media directory and returns the entries
// found, ascending by recovered identifier. A missing directory yields an
// empty result.
func (vl VersionLayout) MediaOnDisk(ctx context.Context) ([]MediaEntry, error) {
	return ScanMediaDir(ctx, vl.MediaDir())
}
