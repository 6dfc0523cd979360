// Package resume persists per-chunk download progress to a JSON sidecar file
// next to the output file, so an interrupted download can continue where it
// left off in a later process.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rfetch/rfetch/pkg/download/plan"
)

// Suffix is appended to the full output path (extension included) to derive
// the sidecar path.
const Suffix = ".rdownload"

// ErrCorrupt indicates that a sidecar file exists but could not be parsed.
// Callers treat this the same as an identity mismatch and restart cold.
var ErrCorrupt = errors.New("resume state is unreadable")

// Record is the persisted state of one download: the identity of the remote
// resource and the completion flag of every planned chunk.
type Record struct {
	URL       string       `json:"url"`
	TotalSize int64        `json:"total_size"`
	ETag      *string      `json:"etag"`
	Chunks    []plan.Chunk `json:"chunks"`
}

// NewRecord builds a fresh Record for the given resource. An empty etag is
// stored as null.
func NewRecord(url string, totalSize int64, etag string, chunks []plan.Chunk) *Record {
	r := &Record{
		URL:       url,
		TotalSize: totalSize,
		Chunks:    chunks,
	}
	if etag != "" {
		r.ETag = &etag
	}
	return r
}

// IdentityTag returns the recorded etag, or "" when none was recorded.
func (r *Record) IdentityTag() string {
	if r.ETag == nil {
		return ""
	}
	return *r.ETag
}

// CompletedBytes sums the lengths of all chunks already marked complete.
func (r *Record) CompletedBytes() int64 {
	var n int64
	for _, c := range r.Chunks {
		if c.Completed {
			n += c.Length()
		}
	}
	return n
}

// SidecarPath derives the sidecar path from the output path. The suffix is
// appended to the whole path, not substituted for the extension, so
// "archive.tar.gz" resumes from "archive.tar.gz.rdownload".
func SidecarPath(outputPath string) string {
	return outputPath + Suffix
}

// Load reads and parses the sidecar at path. It returns (nil, nil) when no
// sidecar exists, and ErrCorrupt when one exists but cannot be decoded.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading resume state %s: %w", path, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &r, nil
}

// Save serializes the record as indented JSON and rewrites the sidecar. The
// write is not atomic; a torn write decodes as ErrCorrupt on the next load
// and degrades to a cold restart.
func Save(path string, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding resume state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing resume state %s: %w", path, err)
	}
	return nil
}

// Discard removes the sidecar. A missing sidecar is not an error.
func Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing resume state %s: %w", path, err)
	}
	return nil
}
