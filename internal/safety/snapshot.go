// Package safety takes the pre-recovery snapshot: a copy of the files a
// recovery is about to overwrite, kept beside the archives so an operator
// can roll back by hand.
package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/fsutil"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// DescriptorName is the descriptor written into every snapshot directory.
const DescriptorName = "snapshot.json"

// DirPrefix prefixes snapshot directory names in the backup root.
const DirPrefix = "pre_recovery_"

// Snapshot describes a pre-recovery snapshot.
type Snapshot struct {
	Path        string     `json:"path"`
	CreatedAt   time.Time  `json:"created_at"`
	ProjectRoot string     `json:"project_root"`
	Files       []string   `json:"files"`
	VCS         *vcs.State `json:"vcs,omitempty"`
}

// Taker captures snapshots of one project.
type Taker struct {
	cfg      *config.Config
	executor command.Executor
	now      func() time.Time
}

// New creates a snapshot taker. A nil executor uses os/exec.
func New(cfg *config.Config, executor command.Executor) *Taker {
	return &Taker{cfg: cfg, executor: executor, now: time.Now}
}

// Sources are the project paths captured by every snapshot: env files,
// required config files and the scripts directory.
func (t *Taker) Sources() []string {
	sources := []string{".env*", "scripts"}
	sources = append(sources, t.cfg.Checks.RequiredFiles...)
	return sources
}

// Take copies the snapshot sources into a new pre_recovery_<ts> directory
// under the backup root and records the source-control pointer.
func (t *Taker) Take(ctx context.Context) (*Snapshot, error) {
	root := t.cfg.ProjectRoot
	created := t.now()

	dir, err := t.makeDir(created)
	if err != nil {
		return nil, err
	}

	files, err := fsutil.Expand(root, t.Sources(), "node_modules")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot sources: %w", err)
	}

	snap := &Snapshot{
		Path:        dir,
		CreatedAt:   created,
		ProjectRoot: root,
		Files:       []string{},
	}
	filesDir := filepath.Join(dir, "files")
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := fsutil.CopyFile(filepath.Join(root, filepath.FromSlash(rel)), filepath.Join(filesDir, filepath.FromSlash(rel))); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", rel, err)
		}
		snap.Files = append(snap.Files, rel)
	}

	git := vcs.New(root, t.executor)
	state, err := git.Snapshot(ctx)
	switch {
	case err == nil:
		snap.VCS = state
	case errors.Is(err, apperrors.ErrNotRepository):
		logging.Debug("Project is not a repository, snapshot has no source-control pointer")
	default:
		logging.Warn("Failed to capture source-control pointer", logging.Err(err))
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptorName), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write snapshot descriptor: %w", err)
	}

	logging.Info("Pre-recovery snapshot created",
		logging.String("path", dir),
		logging.Int("files", len(snap.Files)))
	return snap, nil
}

func (t *Taker) makeDir(created time.Time) (string, error) {
	if err := os.MkdirAll(t.cfg.BackupRoot, 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup root: %w", err)
	}
	base := filepath.Join(t.cfg.BackupRoot, DirPrefix+created.Format("20060102_150405"))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o700)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", base, i)
	}
}
