package paths

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"go-civitai-cache/internal/helpers"
)

// ErrURLFilename is returned when a media URL carries no isolable filename.
// There is deliberately no fallback to a synthesized name: the scanner
// recovers identifiers from on-disk names, and a synthesized name would break
// that round trip.
var ErrURLFilename = errors.New("cannot extract filename from media URL")

// metaExt is the extension of model and version metadata files.
const metaExt = ".meta"

// mediaDirName is the per-version subdirectory holding preview media.
const mediaDirName = "media"

// Layout computes deterministic filesystem paths for cached entities under a
// base directory:
//
//	{base}/{modelType}/{modelId}/{modelId}.meta
//	{base}/{modelType}/{modelId}/{versionId}/{versionId}.meta
//	{base}/{modelType}/{modelId}/{versionId}/{fileId}_{sanitizedName}
//	{base}/{modelType}/{modelId}/{versionId}/media/{urlFilename}
//
// Every level embeds the identifier unique at that level, so distinct
// (type, modelId, versionId, fileId) tuples never collide and the same tuple
// always yields the same path. Layout is pure: it never touches the disk.
type Layout struct {
	base string
}

// NewLayout builds a Layout rooted at base. The base directory is treated as
// opaque and normalized once; it may be relative or absolute.
func NewLayout(base string) Layout {
	return Layout{base: filepath.Clean(base)}
}

// Base returns the normalized base directory.
func (l Layout) Base() string {
	return l.base
}

// ModelDir returns the directory holding everything for one model.
func (l Layout) ModelDir(modelType string, modelID int) string {
	return filepath.Join(l.base, helpers.SanitizeFileName(modelType), fmt.Sprintf("%d", modelID))
}

// ModelMetaPath returns the path of the model's metadata file.
func (l Layout) ModelMetaPath(modelType string, modelID int) string {
	return filepath.Join(l.ModelDir(modelType, modelID), fmt.Sprintf("%d%s", modelID, metaExt))
}

// VersionDir returns the directory holding one version's files.
func (l Layout) VersionDir(modelType string, modelID, versionID int) string {
	return filepath.Join(l.ModelDir(modelType, modelID), fmt.Sprintf("%d", versionID))
}

// VersionMetaPath returns the path of the version's metadata file.
func (l Layout) VersionMetaPath(modelType string, modelID, versionID int) string {
	return filepath.Join(l.VersionDir(modelType, modelID, versionID), fmt.Sprintf("%d%s", versionID, metaExt))
}

// VersionMediaDir returns the version's media subdirectory.
func (l Layout) VersionMediaDir(modelType string, modelID, versionID int) string {
	return filepath.Join(l.VersionDir(modelType, modelID, versionID), mediaDirName)
}

// FilePath returns the path for a downloadable file. The file id is prefixed
// onto the sanitized display name, so two sibling files sharing a display
// name still land on distinct paths, and a hostile display name cannot
// escape the version directory.
func (l Layout) FilePath(modelType string, modelID, versionID, fileID int, displayName string) string {
	name := fmt.Sprintf("%d_%s", fileID, helpers.SanitizeFileName(displayName))
	return filepath.Join(l.VersionDir(modelType, modelID, versionID), name)
}

// MediaPath returns the path for a media item, reusing the filename embedded
// in its source URL so the on-disk name stays traceable to the origin and the
// media scanner can recover the identifier from the name alone. Fails with
// ErrURLFilename when the URL has no isolable filename.
func (l Layout) MediaPath(modelType string, modelID, versionID int, mediaURL string) (string, error) {
	name, err := MediaFileName(mediaURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.VersionMediaDir(modelType, modelID, versionID), name), nil
}

// MediaFileName extracts the filename component of a media URL, with any
// query string dropped.
func MediaFileName(mediaURL string) (string, error) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrURLFilename, mediaURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: %q", ErrURLFilename, mediaURL)
	}
	return helpers.SanitizeFileName(name), nil
}
