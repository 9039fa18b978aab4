package models

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Identifier recovery errors
var (
	// ErrMalformedURL means no path segment could be isolated from the URL.
	ErrMalformedURL = errors.New("no path segment in media URL")
	// ErrNonNumericSegment means the trailing segment (after stripping one
	// extension) did not parse as a base-10 integer.
	ErrNonNumericSegment = errors.New("media URL segment is not numeric")
)

// RecoverMediaID derives the numeric media identifier from its URL: the final
// path segment, with one trailing dotted extension stripped if present, parsed
// base-10. URLs ending in a bare numeric segment with no extension are valid.
func RecoverMediaID(rawURL string) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	segment := path.Base(u.Path)
	if segment == "." || segment == "/" || segment == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	if ext := path.Ext(segment); ext != "" {
		segment = strings.TrimSuffix(segment, ext)
	}

	id, err := strconv.Atoi(segment)
	if err != nil {
		return 0, fmt.Errorf("%w: %q in %q", ErrNonNumericSegment, segment, rawURL)
	}
	return id, nil
}

// MediaRecoveryFailure reports a single media item whose identifier could not
// be recovered. Failures are per-item so one bad entry never discards the
// rest of the batch.
type MediaRecoveryFailure struct {
	URL string
	Err error
}

func (f MediaRecoveryFailure) Error() string {
	return fmt.Sprintf("media %s: %v", f.URL, f.Err)
}

func (f MediaRecoveryFailure) Unwrap() error {
	return f.Err
}

// NormalizeMedia ensures every returned media item carries a non-nil
// identifier. Items that already have one pass through unchanged; null ids
// are recovered from the URL; items that fail recovery are excluded from the
// result and reported individually.
func NormalizeMedia(items []Media) ([]Media, []MediaRecoveryFailure) {
	if len(items) == 0 {
		return nil, nil
	}

	normalized := make([]Media, 0, len(items))
	var failures []MediaRecoveryFailure
	for _, item := range items {
		if item.ID != nil {
			normalized = append(normalized, item)
			continue
		}
		id, err := RecoverMediaID(item.URL)
		if err != nil {
			failures = append(failures, MediaRecoveryFailure{URL: item.URL, Err: err})
			continue
		}
		item.ID = &id
		normalized = append(normalized, item)
	}
	return normalized, failures
}
