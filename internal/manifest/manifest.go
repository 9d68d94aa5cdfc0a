// Package manifest describes the contents of a backup archive.
//
// A manifest lists every file stored in an archive with its digest, size and
// mode. It is written as MANIFEST.json, the first entry of the tar stream, so
// readers can verify an archive without unpacking it first.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// FileName is the manifest's entry name inside an archive.
const FileName = "MANIFEST.json"

// Version is the manifest format written by this build. Readers reject
// any other version rather than guess at its layout.
const Version = 1

// Entry describes one archived file.
type Entry struct {
	Path   string      `json:"path"`
	SHA256 string      `json:"sha256"`
	Size   int64       `json:"size"`
	Mode   fs.FileMode `json:"mode"`
}

// Manifest is the structured index of a backup archive.
type Manifest struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Class      string    `json:"class"`
	FileCount  int       `json:"file_count"`
	TotalSize  int64     `json:"total_size"`
	Components []string  `json:"components"`
	Entries    []Entry   `json:"entries"`
}

// Build walks dir and records every regular file except the manifest itself.
func Build(dir, class string, components []string, createdAt time.Time) (*Manifest, error) {
	m := &Manifest{
		Version:    Version,
		CreatedAt:  createdAt.UTC(),
		Class:      class,
		Components: append([]string(nil), components...),
		Entries:    []Entry{},
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == FileName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, size, err := HashFile(p)
		if err != nil {
			return err
		}
		m.Entries = append(m.Entries, Entry{
			Path:   name,
			SHA256: sum,
			Size:   size,
			Mode:   info.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}

	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
	m.FileCount = len(m.Entries)
	for _, e := range m.Entries {
		m.TotalSize += e.Size
	}
	return m, nil
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// Write stores the manifest as dir/MANIFEST.json.
func (m *Manifest) Write(dir string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o644)
}

// Parse decodes a manifest and checks its version and totals.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrArchiveCorrupt, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: version %d", apperrors.ErrUnsupportedManifest, m.Version)
	}
	if m.FileCount != len(m.Entries) {
		return nil, fmt.Errorf("%w: file_count %d but %d entries", apperrors.ErrManifestMismatch, m.FileCount, len(m.Entries))
	}
	return &m, nil
}

// ReadFrom parses a manifest from r.
func ReadFrom(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Read loads dir/MANIFEST.json.
func Read(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrManifestMissing
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Lookup returns the entry for an archive path.
func (m *Manifest) Lookup(p string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Path == p {
			return e, true
		}
	}
	return Entry{}, false
}

// HasComponent reports whether a component was captured.
func (m *Manifest) HasComponent(name string) bool {
	for _, c := range m.Components {
		if c == name {
			return true
		}
	}
	return false
}

// Under returns the entries below prefix with the prefix stripped, so they can
// be verified against the directory the prefix was restored into.
func (m *Manifest) Under(prefix string) []Entry {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []Entry
	for _, e := range m.Entries {
		if strings.HasPrefix(e.Path, prefix) {
			e.Path = strings.TrimPrefix(e.Path, prefix)
			out = append(out, e)
		}
	}
	return out
}

// HashFile returns the hex SHA-256 and size of the file at p.
func HashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the hex SHA-256 and length of everything read from r.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
