// Package validate checks backup archives and recovered project trees.
package validate

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/archive"
	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/crypto"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/manifest"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// MinArchiveSize is the smallest archive accepted as valid.
const MinArchiveSize = 1024

// Result is the outcome of a validation run.
type Result struct {
	Target       string             `json:"target"`
	Timestamp    time.Time          `json:"timestamp"`
	Encrypted    bool               `json:"encrypted,omitempty"`
	Size         int64              `json:"size,omitempty"`
	CheckedFiles int                `json:"checked_files"`
	Findings     []severity.Finding `json:"findings,omitempty"`
	Status       severity.Level     `json:"status"`
	Duration     string             `json:"duration"`
	Passed       bool               `json:"passed"`

	Manifest *manifest.Manifest `json:"-"`

	cause error
}

func newResult(target string) *Result {
	return &Result{Target: target, Timestamp: time.Now()}
}

func (r *Result) add(check string, level severity.Level, cause error, format string, args ...any) {
	r.Findings = append(r.Findings, severity.Finding{
		Check:    check,
		Severity: level,
		Message:  fmt.Sprintf(format, args...),
	})
	if level.Failing() && r.cause == nil {
		r.cause = cause
	}
}

func (r *Result) finish(start time.Time) *Result {
	r.Status = severity.Worst(r.Findings)
	r.Passed = !r.Status.Failing()
	r.Duration = time.Since(start).String()
	return r
}

// Err returns nil for a passing result, otherwise an error wrapping the
// cause of the first failing finding.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	var msgs []string
	for _, f := range r.Findings {
		if f.Severity.Failing() {
			msgs = append(msgs, f.Message)
		}
	}
	cause := r.cause
	if cause == nil {
		cause = apperrors.ErrValidationFailed
	}
	return fmt.Errorf("%w: %s", cause, strings.Join(msgs, "; "))
}

// Validator checks archives and recovered trees against the configuration.
type Validator struct {
	cfg      *config.Config
	executor command.Executor
}

// New creates a validator. A nil executor uses os/exec.
func New(cfg *config.Config, executor command.Executor) *Validator {
	if executor == nil {
		executor = command.NewExecExecutor()
	}
	return &Validator{cfg: cfg, executor: executor}
}

// Archive checks the archive at path. Any defect is an ERROR finding; the
// returned error is only for an archive that cannot be opened at all.
//
// Sealed archives get the size and header checks only, since their contents
// cannot be read without the passphrase.
func (v *Validator) Archive(path string) (*Result, error) {
	start := time.Now()
	result := newResult(path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	result.Size = info.Size()
	if info.Size() < MinArchiveSize {
		result.add("size", severity.Error, apperrors.ErrArchiveTooSmall,
			"archive is %d bytes, minimum is %d", info.Size(), MinArchiveSize)
		return result.finish(start), nil
	}

	sealed, err := crypto.IsSealed(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive header: %w", err)
	}
	if strings.HasSuffix(path, crypto.Suffix) || sealed {
		result.Encrypted = true
		if !sealed {
			result.add("header", severity.Error, apperrors.ErrArchiveCorrupt,
				"archive has %s suffix but no sealed header", crypto.Suffix)
		}
		return result.finish(start), nil
	}

	v.checkContents(path, result)
	result.finish(start)
	logging.Debug("Archive validated",
		logging.String("archive", path),
		logging.Int("files", result.CheckedFiles),
		logging.String("status", result.Status.String()))
	return result, nil
}

func (v *Validator) checkContents(path string, result *Result) {
	var m *manifest.Manifest
	seen := make(map[string]bool)
	first := true

	err := archive.WalkFile(path, func(hdr *tar.Header, r io.Reader) error {
		if first {
			first = false
			if hdr.Name != manifest.FileName {
				return fmt.Errorf("%w: first entry is %s", apperrors.ErrManifestMissing, hdr.Name)
			}
			parsed, err := manifest.ReadFrom(r)
			if err != nil {
				return err
			}
			m = parsed
			return nil
		}

		entry, ok := m.Lookup(hdr.Name)
		if !ok {
			return fmt.Errorf("%w: %s not in manifest", apperrors.ErrManifestMismatch, hdr.Name)
		}
		sum, size, err := manifest.HashReader(r)
		if err != nil {
			return err
		}
		if sum != entry.SHA256 || size != entry.Size {
			return fmt.Errorf("%w: %s", apperrors.ErrManifestMismatch, hdr.Name)
		}
		seen[hdr.Name] = true
		result.CheckedFiles++
		return nil
	})

	switch {
	case err != nil:
		result.add("contents", severity.Error, rootCause(err), "%v", err)
		return
	case m == nil:
		result.add("manifest", severity.Error, apperrors.ErrManifestMissing, "archive contains no entries")
		return
	}

	result.Manifest = m
	for _, e := range m.Entries {
		if !seen[e.Path] {
			result.add("contents", severity.Error, apperrors.ErrManifestMismatch,
				"%s listed in manifest but missing from archive", e.Path)
		}
	}
}

func rootCause(err error) error {
	for _, sentinel := range []error{
		apperrors.ErrManifestMissing,
		apperrors.ErrManifestMismatch,
		apperrors.ErrUnsupportedManifest,
		apperrors.ErrArchiveCorrupt,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return apperrors.ErrArchiveCorrupt
}

// Recovery checks that the project at root is usable after a restore.
func (v *Validator) Recovery(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	result := newResult(root)
	checks := v.cfg.Checks

	for _, rel := range checks.CriticalScripts {
		p := filepath.Join(root, rel)
		info, err := os.Stat(p)
		if err != nil {
			result.add("critical_scripts", severity.Error, apperrors.ErrValidationFailed, "critical script missing: %s", rel)
			continue
		}
		result.CheckedFiles++
		if info.Mode().Perm()&0o111 == 0 {
			result.add("critical_scripts", severity.Error, apperrors.ErrValidationFailed, "critical script not executable: %s", rel)
		}
	}

	for _, rel := range checks.RequiredFiles {
		if exists(filepath.Join(root, rel)) {
			result.CheckedFiles++
			continue
		}
		result.add("required_files", severity.Warning, nil, "required config file missing: %s", rel)
	}
	for _, rel := range checks.RecommendedFiles {
		if exists(filepath.Join(root, rel)) {
			result.CheckedFiles++
			continue
		}
		result.add("recommended_files", severity.Warning, nil, "recommended config file missing: %s", rel)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	git := vcs.New(root, v.executor)
	if git.HasGitDir() {
		if err := git.Fsck(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.add("repository", severity.Error, apperrors.ErrValidationFailed, "%v", err)
		}
	}

	if script := checks.DependencyValidator; script != "" {
		p := filepath.Join(root, script)
		if exists(p) {
			if _, err := v.executor.Run(ctx, root, "bash", p); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				result.add("dependencies", severity.Error, apperrors.ErrValidationFailed, "dependency validator failed: %v", err)
			}
		}
	}

	return result.finish(start), nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
