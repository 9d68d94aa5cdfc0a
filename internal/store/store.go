// Package store names, lists and locates archives in the backup root.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// Class is a backup class. Each class has its own retention window.
type Class string

// Backup classes
const (
	Daily    Class = "daily"
	Weekly   Class = "weekly"
	Snapshot Class = "snapshot"
	Manual   Class = "manual"
)

// TimeLayout is the timestamp format embedded in archive names.
const TimeLayout = "20060102_150405"

const (
	archiveExt   = ".tar.gz"
	encryptedExt = ".enc"
	partialExt   = ".partial"
)

var namePattern = regexp.MustCompile(`^(daily|weekly|snapshot|manual)_backup_(\d{8}_\d{6})\.tar\.gz(\.enc)?$`)

// Classes returns every class in a stable order.
func Classes() []Class {
	return []Class{Daily, Weekly, Snapshot, Manual}
}

// ParseClass validates a class name.
func ParseClass(s string) (Class, error) {
	for _, c := range Classes() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want daily, weekly, snapshot or manual)", apperrors.ErrInvalidClass, s)
}

func (c Class) String() string { return string(c) }

// FileName returns the archive name for a class and creation time.
func FileName(class Class, t time.Time, encrypted bool) string {
	name := fmt.Sprintf("%s_backup_%s%s", class, t.Format(TimeLayout), archiveExt)
	if encrypted {
		name += encryptedExt
	}
	return name
}

// PartialName returns the hidden name an archive is assembled under before
// it is renamed into place.
func PartialName(final string) string {
	return "." + final + partialExt
}

// IsPartial reports whether name is an in-progress or abandoned temporary file.
func IsPartial(name string) bool {
	return strings.HasPrefix(name, ".") && (strings.HasSuffix(name, partialExt) || strings.HasSuffix(name, ".tmp"))
}

// Archive is an archive file found in the backup root.
type Archive struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Class     Class     `json:"class"`
	Timestamp time.Time `json:"timestamp"`
	Encrypted bool      `json:"encrypted"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// ParseName extracts class, timestamp and encryption from an archive name.
func ParseName(name string) (Archive, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Archive{}, false
	}
	ts, err := time.ParseInLocation(TimeLayout, m[2], time.Local)
	if err != nil {
		return Archive{}, false
	}
	return Archive{
		Name:      name,
		Class:     Class(m[1]),
		Timestamp: ts,
		Encrypted: m[3] != "",
	}, true
}

// Store is a backup root directory.
type Store struct {
	root string
}

// New returns a store over root. The directory is not created.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the backup root path.
func (s *Store) Root() string {
	return s.root
}

// Path returns the final path of an archive.
func (s *Store) Path(class Class, t time.Time, encrypted bool) string {
	return filepath.Join(s.root, FileName(class, t, encrypted))
}

// Exists reports whether the backup root exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// List returns archives of class, newest first. A missing root yields an
// empty list, not an error.
func (s *Store) List(class Class) ([]Archive, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Class == class {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAll returns every archive in the root, newest first.
func (s *Store) ListAll() ([]Archive, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	var out []Archive
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		a, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		a.Path = filepath.Join(s.root, e.Name())
		a.Size = info.Size()
		a.ModTime = info.ModTime()
		out = append(out, a)
	}

	sortNewestFirst(out)
	return out, nil
}

// Latest returns the newest archive of class.
func (s *Store) Latest(class Class) (*Archive, error) {
	list, err := s.List(class)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no %s archives in %s", apperrors.ErrNoBackupFound, class, s.root)
	}
	a := list[0]
	return &a, nil
}

// Partials returns temporary files left in the root by interrupted runs.
func (s *Store) Partials() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsPartial(e.Name()) {
			out = append(out, filepath.Join(s.root, e.Name()))
		}
	}
	return out, nil
}

// Resolve turns a user-supplied archive reference into a path. Bare names
// are looked up in the backup root.
func (s *Store) Resolve(ref string) (string, error) {
	candidates := []string{ref}
	if !filepath.IsAbs(ref) && !strings.ContainsRune(ref, filepath.Separator) {
		candidates = append([]string{filepath.Join(s.root, ref)}, ref)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return filepath.Abs(c)
		}
	}
	return "", fmt.Errorf("%w: %s", apperrors.ErrNoBackupFound, ref)
}

func sortNewestFirst(list []Archive) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		if !list[i].ModTime.Equal(list[j].ModTime) {
			return list[i].ModTime.After(list[j].ModTime)
		}
		return list[i].Name > list[j].Name
	})
}

// Newest returns the newest archive among lists, or false if all are empty.
func Newest(lists ...[]Archive) (Archive, bool) {
	var all []Archive
	for _, l := range lists {
		all = append(all, l...)
	}
	if len(all) == 0 {
		return Archive{}, false
	}
	sortNewestFirst(all)
	return all[0], true
}
