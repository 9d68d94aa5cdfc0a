package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// VerifyResult is the outcome of checking files on disk against manifest entries.
type VerifyResult struct {
	Timestamp    time.Time `json:"timestamp"`
	Root         string    `json:"root"`
	TotalFiles   int       `json:"total_files"`
	CheckedFiles int       `json:"checked_files"`
	CorruptFiles int       `json:"corrupt_files"`
	MissingFiles int       `json:"missing_files"`
	Errors       []string  `json:"errors,omitempty"`
	Duration     string    `json:"duration"`
	Passed       bool      `json:"passed"`
}

// Err summarises a failed verification, or returns nil.
func (r *VerifyResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%d corrupt, %d missing of %d files under %s", r.CorruptFiles, r.MissingFiles, r.TotalFiles, r.Root)
}

// VerifyEntries checks that every entry exists below root with the recorded
// digest. Entry paths are relative to root.
func VerifyEntries(root string, entries []Entry) *VerifyResult {
	start := time.Now()
	result := &VerifyResult{
		Timestamp:  start,
		Root:       root,
		TotalFiles: len(entries),
	}

	for _, e := range entries {
		p := filepath.Join(root, filepath.FromSlash(e.Path))
		sum, size, err := HashFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				result.MissingFiles++
				result.Errors = append(result.Errors, fmt.Sprintf("MISSING: %s", e.Path))
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("hash error %s: %v", e.Path, err))
			result.CorruptFiles++
			continue
		}

		result.CheckedFiles++
		if sum != e.SHA256 || size != e.Size {
			result.CorruptFiles++
			result.Errors = append(result.Errors, fmt.Sprintf("CORRUPT: %s (digest mismatch)", e.Path))
		}
	}

	result.Duration = time.Since(start).String()
	result.Passed = result.CorruptFiles == 0 && result.MissingFiles == 0
	return result
}

// Verify checks an extracted archive tree against its manifest.
func Verify(dir string, m *Manifest) *VerifyResult {
	return VerifyEntries(dir, m.Entries)
}
