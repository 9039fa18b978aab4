package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/helpers"
	"go-civitai-cache/internal/models"
)

// Custom Downloader Errors
var (
	ErrHashMismatch = errors.New("downloaded file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
)

// Downloader fetches files into the cache layout with hash verification.
// Target paths are computed by the caller; the downloader never renames or
// relocates, so the on-disk layout stays deterministic.
type Downloader struct {
	client *http.Client
	apiKey string
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client, apiKey string) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{
		client: client,
		apiKey: apiKey,
	}
}

// existingFileValid reports whether targetFilepath already exists and, when
// hashes are provided, matches one of them. A pre-existing file with no
// expected hashes (media) is accepted as-is.
func existingFileValid(targetFilepath string, hashes models.Hashes) bool {
	info, err := os.Stat(targetFilepath)
	if err != nil || info.IsDir() {
		return false
	}

	hashesProvided := hashes.SHA256 != "" || hashes.BLAKE3 != "" || hashes.CRC32 != "" || hashes.AutoV2 != ""
	if !hashesProvided {
		log.Debugf("Existing file %s accepted (no expected hashes).", targetFilepath)
		return true
	}

	if helpers.CheckHash(targetFilepath, hashes) {
		log.Debugf("Existing file %s passed hash check.", targetFilepath)
		return true
	}

	log.Warnf("Existing file %s failed hash check, will re-download.", targetFilepath)
	return false
}

func (d *Downloader) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	return req, nil
}

// downloadToTemp streams the response body into tempFile, counting bytes.
func downloadToTemp(resp *http.Response, tempFile *os.File, targetPath string) error {
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)

	counter := &helpers.CounterWriter{
		Writer: tempFile,
		Total:  0,
	}

	log.Infof("Downloading to %s (Size: %s)...", targetPath, helpers.BytesToSize(size))

	if _, err := io.Copy(counter, resp.Body); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("writing to temporary file %s: %w", tempFile.Name(), err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	return nil
}

// verifyHash verifies the downloaded file hash if expected hashes exist.
func verifyHash(filePath string, hashes models.Hashes) error {
	hashesProvided := hashes.SHA256 != "" || hashes.BLAKE3 != "" || hashes.CRC32 != "" || hashes.AutoV2 != ""
	if !hashesProvided {
		log.Debugf("Skipping hash verification for %s (no expected hashes provided).", filePath)
		return nil
	}

	if !helpers.CheckHash(filePath, hashes) {
		log.Errorf("Hash mismatch for downloaded file: %s", filePath)
		return ErrHashMismatch
	}

	log.Infof("Hash verified for %s.", filePath)
	return nil
}

// DownloadFile downloads url into targetFilepath exactly. A valid existing
// file short-circuits the download. The file lands via a temp file plus
// rename so a crash never leaves a partial file at the final path.
func (d *Downloader) DownloadFile(ctx context.Context, targetFilepath string, url string, hashes models.Hashes) (string, error) {
	if existingFileValid(targetFilepath, hashes) {
		log.Infof("File already present, skipping download: %s", targetFilepath)
		return targetFilepath, nil
	}

	targetDir := filepath.Dir(targetFilepath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(targetFilepath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, targetFilepath, err)
	}

	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	req, err := d.newRequest(ctx, url)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	if err := downloadToTemp(resp, tempFile, targetFilepath); err != nil {
		return "", err
	}

	if err := os.Rename(tempFile.Name(), targetFilepath); err != nil {
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempFile.Name(), targetFilepath, err)
	}
	shouldCleanupTemp = false

	if err := verifyHash(targetFilepath, hashes); err != nil {
		return "", err
	}

	log.Infof("Successfully downloaded %s", targetFilepath)
	return targetFilepath, nil
}

// DownloadMedia downloads a media item to targetFilepath. Media carries no
// expected hashes, so presence alone short-circuits.
func (d *Downloader) DownloadMedia(ctx context.Context, targetFilepath string, url string) (string, error) {
	return d.DownloadFile(ctx, targetFilepath, url, models.Hashes{})
}
