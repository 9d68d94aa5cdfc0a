package recovery

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lcrostarosa/lifeboat/internal/archive"
	"github.com/lcrostarosa/lifeboat/internal/backup"
	"github.com/lcrostarosa/lifeboat/internal/component"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/fsutil"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/manifest"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// Stage names, in restore order
const (
	StageConfiguration = "configuration"
	StageScripts       = "scripts"
	StageIntegration   = "integration_config"
	StageDocumentation = "documentation"
	StageSourceControl = "source_control"
	StageTests         = "tests"
)

// errNothingToRestore marks a stage whose component holds nothing to apply.
var errNothingToRestore = errors.New("nothing to restore")

// workspace is what a stage restores from and into.
type workspace struct {
	projectRoot string
	tree        string
	manifest    *manifest.Manifest
	git         *vcs.Client
	critical    map[string]bool
}

// Stage is one restoration step.
type Stage struct {
	Name             string
	Component        string
	RequiredForQuick bool
	Restore          func(ctx context.Context, w *workspace) ([]manifest.Entry, error)
	Validate         func(ctx context.Context, w *workspace, restored []manifest.Entry) error
}

// Stages returns every stage in restore order.
func Stages() []Stage {
	return []Stage{
		{
			Name:             StageConfiguration,
			Component:        component.Configurations,
			RequiredForQuick: true,
			Restore:          restoreFiles(component.Configurations),
			Validate:         verifyFiles,
		},
		{
			Name:      StageScripts,
			Component: component.Scripts,
			Restore:   restoreScripts,
			Validate:  verifyScripts,
		},
		{
			Name:      StageIntegration,
			Component: component.IntegrationConfig,
			Restore:   restoreFiles(component.IntegrationConfig),
			Validate:  verifyFiles,
		},
		{
			Name:      StageDocumentation,
			Component: component.Documentation,
			Restore:   restoreFiles(component.Documentation),
			Validate:  verifyFiles,
		},
		{
			Name:      StageSourceControl,
			Component: component.SystemState,
			Restore:   restoreSourceControl,
			Validate:  verifySourceControl,
		},
		{
			Name:      StageTests,
			Component: component.Tests,
			Restore:   restoreFiles(component.Tests),
			Validate:  verifyFiles,
		},
	}
}

// FindStage looks a stage up by stage or component name and returns its
// one-based position.
func FindStage(name string) (Stage, int, error) {
	for i, s := range Stages() {
		if s.Name == name || s.Component == name {
			return s, i + 1, nil
		}
	}
	names := make([]string, 0, 6)
	for _, s := range Stages() {
		names = append(names, s.Name)
	}
	return Stage{}, 0, fmt.Errorf("%w: %q (want one of %s)", apperrors.ErrUnknownComponent, name, strings.Join(names, ", "))
}

// restoreFiles copies a component's captured files back to their project paths.
func restoreFiles(name string) func(context.Context, *workspace) ([]manifest.Entry, error) {
	return func(ctx context.Context, w *workspace) ([]manifest.Entry, error) {
		entries := w.manifest.Under(name)
		if len(entries) == 0 {
			return nil, errNothingToRestore
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			dst, err := archive.SafeJoin(w.projectRoot, e.Path)
			if err != nil {
				return nil, err
			}
			src := filepath.Join(w.tree, name, filepath.FromSlash(e.Path))
			if err := fsutil.CopyFile(src, dst); err != nil {
				return nil, fmt.Errorf("failed to restore %s: %w", e.Path, err)
			}
			if e.Mode != 0 {
				if err := os.Chmod(dst, e.Mode.Perm()); err != nil {
					return nil, err
				}
			}
		}
		return entries, nil
	}
}

func verifyFiles(_ context.Context, w *workspace, restored []manifest.Entry) error {
	if res := manifest.VerifyEntries(w.projectRoot, restored); !res.Passed {
		return fmt.Errorf("%w: %v", apperrors.ErrManifestMismatch, res.Err())
	}
	return nil
}

// restoreScripts unpacks the scripts sub-archive into the project and puts
// the executable bits back.
func restoreScripts(ctx context.Context, w *workspace) ([]manifest.Entry, error) {
	sub := filepath.Join(w.tree, filepath.FromSlash(component.ScriptsArchive))
	if !fsutil.Exists(sub) {
		return nil, errNothingToRestore
	}

	var restored []manifest.Entry
	err := archive.WalkFile(sub, func(hdr *tar.Header, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := archive.SafeJoin(w.projectRoot, hdr.Name)
		if err != nil {
			return err
		}
		mode := hdr.FileInfo().Mode().Perm()
		if strings.HasSuffix(hdr.Name, ".sh") || w.critical[hdr.Name] {
			mode |= 0o111
		}
		sum, size, err := writeFile(dst, r, mode)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", hdr.Name, err)
		}
		restored = append(restored, manifest.Entry{Path: hdr.Name, SHA256: sum, Size: size, Mode: mode})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func verifyScripts(ctx context.Context, w *workspace, restored []manifest.Entry) error {
	if err := verifyFiles(ctx, w, restored); err != nil {
		return err
	}
	var notExec []string
	for _, e := range restored {
		if e.Mode&0o111 != 0 && !fsutil.IsExecutable(filepath.Join(w.projectRoot, filepath.FromSlash(e.Path))) {
			notExec = append(notExec, e.Path)
		}
	}
	if len(notExec) > 0 {
		return fmt.Errorf("scripts not executable after restore: %s", strings.Join(notExec, ", "))
	}
	return nil
}

func writeFile(dst string, r io.Reader, mode os.FileMode) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		f.Close()
		return "", n, err
	}
	if err := f.Close(); err != nil {
		return "", n, err
	}
	if err := os.Chmod(dst, mode); err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// restoreSourceControl rebuilds the repository from the bundle when the
// project has none, then re-applies the recorded remotes.
func restoreSourceControl(ctx context.Context, w *workspace) ([]manifest.Entry, error) {
	state, err := backup.ReadState(filepath.Join(w.tree, filepath.FromSlash(component.StateFile)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNothingToRestore
		}
		return nil, err
	}
	if state.VCS == nil {
		return nil, errNothingToRestore
	}

	if !w.git.HasGitDir() {
		bundle := filepath.Join(w.tree, filepath.FromSlash(component.BundleFile))
		if !state.Bundle || !fsutil.Exists(bundle) {
			return nil, errors.New("project has no repository and the archive holds no bundle")
		}
		if err := w.git.RestoreFromBundle(ctx, bundle, state.VCS.Branch); err != nil {
			return nil, err
		}
		if !hasRemote(state.VCS.Remotes, "origin") {
			// The clone's origin points at the extracted bundle.
			if err := w.git.RemoveRemote(ctx, "origin"); err != nil {
				return nil, err
			}
		}
		logging.Info("Repository rebuilt from bundle",
			logging.String("branch", state.VCS.Branch),
			logging.String("revision", state.VCS.Revision))
	}

	for _, r := range state.VCS.Remotes {
		if err := w.git.SetRemote(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to restore remote %s: %w", r.Name, err)
		}
	}
	return nil, nil
}

func verifySourceControl(ctx context.Context, w *workspace, _ []manifest.Entry) error {
	if !w.git.IsRepository(ctx) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotRepository, w.projectRoot)
	}
	state, err := backup.ReadState(filepath.Join(w.tree, filepath.FromSlash(component.StateFile)))
	if err != nil || state.VCS == nil {
		return err
	}
	remotes, err := w.git.Remotes(ctx)
	if err != nil {
		return err
	}
	for _, want := range state.VCS.Remotes {
		found := false
		for _, got := range remotes {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("remote %s not restored", want.Name)
		}
	}
	return nil
}

func hasRemote(remotes []vcs.Remote, name string) bool {
	for _, r := range remotes {
		if r.Name == name {
			return true
		}
	}
	return false
}
