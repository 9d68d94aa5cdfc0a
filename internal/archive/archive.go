// Package archive reads and writes the tar.gz containers lifeboat stores
// backups and component sub-archives in.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// Ext is the extension of an unencrypted archive.
const Ext = ".tar.gz"

// WalkFunc is called for every regular file entry while reading an archive.
// r is only valid for the duration of the call.
type WalkFunc func(hdr *tar.Header, r io.Reader) error

// Write streams the tree under srcDir into w as a gzip-compressed tar.
// Entries named in first (slash-separated, relative to srcDir) are written
// before everything else, in the given order; the rest follow in lexical order.
func Write(w io.Writer, srcDir string, first ...string) error {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	written := make(map[string]bool, len(first))
	for _, name := range first {
		if err := addFile(tw, srcDir, name); err != nil {
			return err
		}
		written[name] = true
	}

	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if written[name] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return fmt.Errorf("failed to create tar header for %s: %w", name, err)
			}
			hdr.Name = name + "/"
			return tw.WriteHeader(hdr)
		case info.Mode().IsRegular():
			return addFile(tw, srcDir, name)
		default:
			// Sockets, devices and symlinks are not part of any component.
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, srcDir, name string) error {
	p := filepath.Join(srcDir, filepath.FromSlash(name))
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	hdr.Name = name
	// Ownership is host specific and never restored.
	hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}

	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s to tar: %w", name, err)
	}
	return nil
}

// Create writes srcDir to the archive file dst.
func Create(dst, srcDir string, first ...string) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if err := Write(f, srcDir, first...); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	return f.Close()
}

// Walk reads the archive stream r and calls fn for each regular file.
// Structural problems (bad gzip, bad tar, a truncated or mismatched gzip
// trailer) are reported as ErrArchiveCorrupt.
func Walk(r io.Reader, fn WalkFunc) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrArchiveCorrupt, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			// The tar end marker comes before the gzip CRC and size trailer.
			if _, err := io.Copy(io.Discard, gz); err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrArchiveCorrupt, err)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrArchiveCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			if isStreamError(err) {
				return fmt.Errorf("%w: %v", apperrors.ErrArchiveCorrupt, err)
			}
			return err
		}
	}
	return nil
}

func isStreamError(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, tar.ErrHeader)
}

// WalkFile is Walk over the archive file at p.
func WalkFile(p string, fn WalkFunc) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return Walk(f, fn)
}

// SafeJoin joins an archive entry name onto dir, rejecting names that would
// land outside dir.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsafePath, name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

// Extract unpacks the archive stream r into destDir, preserving file modes.
func Extract(r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	return Walk(r, func(hdr *tar.Header, body io.Reader) error {
		target, err := SafeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
		}
		mode := fs.FileMode(hdr.Mode).Perm()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(out, body); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		// OpenFile honours umask; the recorded mode wins.
		return os.Chmod(target, mode)
	})
}

// ExtractFile unpacks the archive file src into destDir.
func ExtractFile(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return Extract(f, destDir)
}
