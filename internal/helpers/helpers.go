package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"go-civitai-cache/internal/models"
)

// SanitizeFileName makes a display name safe to use as a single path component.
// Path separators and other characters that are unsafe on common filesystems are
// replaced with underscores; the extension and any spaces are preserved so the
// on-disk name stays recognizable. Leading dots are stripped so a name can never
// become a hidden file or a relative-path component.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	sanitized := strings.TrimLeft(b.String(), ".")
	// Collapse any ".." that survived into a harmless form.
	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", "._")
	}
	return strings.TrimSpace(sanitized)
}

// SanitizePath cleans a path for filesystem use. Absolute paths are cleaned
// and returned as-is; relative paths additionally have traversal sequences
// removed so the result can be joined under a base directory safely.
func SanitizePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	cleaned := filepath.Clean("/" + path)
	return strings.TrimPrefix(cleaned, string(filepath.Separator))
}

// CheckAndMakeDir ensures a directory exists, creating it (and parents) if
// needed. Returns false only when creation failed.
func CheckAndMakeDir(dir string) bool {
	safeDir := SanitizePath(dir)
	if safeDir == "" {
		safeDir = "."
	}
	if err := os.MkdirAll(safeDir, 0o700); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", safeDir)
		return false
	}
	return true
}

// BytesToSize converts a byte count to a human readable string.
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	if bytes == 0 {
		return "0B"
	}
	b := float64(bytes)
	i := 0
	for b >= 1024 && i < len(sizes)-1 {
		b /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", b, sizes[i])
}

// StringSliceContains reports whether item is present in slice, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// CounterWriter wraps an io.Writer and counts the bytes written through it.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// CheckHash verifies a file on disk against the expected hashes. The strongest
// provided hash wins: BLAKE3, then SHA256, then CRC32. Returns false when no
// hash is provided, the file cannot be read, or the chosen hash mismatches.
func CheckHash(path string, hashes models.Hashes) bool {
	if hashes.BLAKE3 == "" && hashes.SHA256 == "" && hashes.CRC32 == "" {
		log.Debugf("No expected hashes provided for %s, cannot verify.", path)
		return false
	}

	// #nosec G304 -- path is computed by the layout builder
	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Debugf("Cannot open %s for hash check", path)
		return false
	}
	defer f.Close()

	var got, want string
	switch {
	case hashes.BLAKE3 != "":
		hasher := blake3.New()
		if _, err := io.Copy(hasher, f); err != nil {
			log.WithError(err).Debugf("Error hashing %s", path)
			return false
		}
		got, want = hex.EncodeToString(hasher.Sum(nil)), hashes.BLAKE3
	case hashes.SHA256 != "":
		hasher := sha256.New()
		if _, err := io.Copy(hasher, f); err != nil {
			log.WithError(err).Debugf("Error hashing %s", path)
			return false
		}
		got, want = hex.EncodeToString(hasher.Sum(nil)), hashes.SHA256
	default:
		crc := crc32.NewIEEE()
		if _, err := io.Copy(crc, f); err != nil {
			log.WithError(err).Debugf("Error hashing %s", path)
			return false
		}
		got, want = fmt.Sprintf("%08X", crc.Sum32()), hashes.CRC32
	}

	if strings.EqualFold(got, want) {
		return true
	}
	log.Debugf("Hash mismatch for %s: got %s, want %s", path, got, want)
	return false
}
