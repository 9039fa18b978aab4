package paths

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// digitRunRegex matches the first maximal run of digits in a filename.
var digitRunRegex = regexp.MustCompile(`[0-9]+`)

// MediaEntry is one media file found on disk, with the identifier recovered
// from its name.
type MediaEntry struct {
	Name string
	Path string
	ID   int
}

// ScanMediaDir enumerates regular files in a media directory and recovers the
// identifier embedded in each name (the first maximal digit run). A missing
// directory yields an empty result: a version with no downloaded media yet is
// a normal state, not an error. Files whose name contains no digits are
// skipped; stray non-media files may legitimately sit in the directory.
//
// Results are sorted ascending by recovered identifier, so repeated scans are
// independent of directory-listing order. The scan checks ctx between
// directory entries; entries already collected stay valid on cancellation.
func ScanMediaDir(ctx context.Context, dir string) ([]MediaEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading media directory %s: %w", dir, err)
	}

	entries := make([]MediaEntry, 0, len(dirents))
	for _, dirent := range dirents {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		if dirent.IsDir() {
			continue
		}
		name := dirent.Name()
		run := digitRunRegex.FindString(name)
		if run == "" {
			log.Debugf("Skipping media file without digit run: %s", name)
			continue
		}
		id, err := strconv.Atoi(run)
		if err != nil {
			// Digit run longer than an int; treat like a name with no id.
			log.Debugf("Skipping media file with unparseable digit run %q: %s", run, name)
			continue
		}
		entries = append(entries, MediaEntry{
			ID:   id,
			Name: name,
			Path: filepath.Join(dir, name),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}
