package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/archive"
	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/crypto"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/filelock"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/manifest"
	"github.com/lcrostarosa/lifeboat/internal/safety"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/store"
	"github.com/lcrostarosa/lifeboat/internal/validate"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// Request describes a recovery.
type Request struct {
	// Archive is a path or a bare archive name in the backup root. Empty
	// picks one the way emergency recovery does.
	Archive string
	Level   Level
	// Component names the stage of a selective recovery.
	Component string
	// ContinueOnError keeps a full recovery going past failed stages.
	ContinueOnError bool
}

// Orchestrator runs recoveries for one project.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	executor  command.Executor
	validator *validate.Validator
	now       func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithExecutor replaces the command executor used for git and validators.
func WithExecutor(executor command.Executor) Option {
	return func(o *Orchestrator) { o.executor = executor }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates a recovery orchestrator.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store.New(cfg.BackupRoot),
		executor: command.NewExecExecutor(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.validator = validate.New(cfg, o.executor)
	return o
}

// Recover restores the project from an archive. The returned session is
// non-nil whenever restoration began, including on failure.
func (o *Orchestrator) Recover(ctx context.Context, req Request) (*Session, error) {
	if req.Level == Emergency {
		res, err := o.Emergency(ctx)
		return res.Final(), err
	}

	stages, err := o.plan(req)
	if err != nil {
		return nil, err
	}

	var path string
	if req.Archive == "" {
		a, err := o.Discover()
		if err != nil {
			return nil, err
		}
		path = a.Path
	} else if path, err = o.store.Resolve(req.Archive); err != nil {
		return nil, err
	}

	return o.run(ctx, path, req, stages)
}

// plan returns the stages of a request with their one-based positions.
func (o *Orchestrator) plan(req Request) ([]plannedStage, error) {
	if _, err := ParseLevel(string(req.Level)); err != nil {
		return nil, err
	}
	var out []plannedStage
	switch req.Level {
	case Quick:
		for i, s := range Stages() {
			if s.RequiredForQuick {
				out = append(out, plannedStage{Stage: s, n: i + 1})
			}
		}
	case Full:
		for i, s := range Stages() {
			out = append(out, plannedStage{Stage: s, n: i + 1})
		}
	case Selective:
		if req.Component == "" {
			return nil, fmt.Errorf("%w: selective recovery needs a component", apperrors.ErrUnknownComponent)
		}
		s, n, err := FindStage(req.Component)
		if err != nil {
			return nil, err
		}
		out = append(out, plannedStage{Stage: s, n: n})
	}
	return out, nil
}

type plannedStage struct {
	Stage
	n int
}

func (o *Orchestrator) run(ctx context.Context, path string, req Request, stages []plannedStage) (*Session, error) {
	session := newSession(path, req.Level, req.Component, o.now())
	session.ContinueOnError = req.ContinueOnError && req.Level == Full
	logging.Info("Starting recovery",
		logging.String("session", session.ID),
		logging.String("level", string(req.Level)),
		logging.String("archive", path))

	if err := os.MkdirAll(o.cfg.BackupRoot, 0o700); err != nil {
		return o.fail(session, fmt.Errorf("failed to create backup root: %w", err))
	}

	var runErr error
	lockErr := filelock.ForDir(o.cfg.BackupRoot).WithLock(ctx, o.cfg.LockTimeout, func() error {
		runErr = o.restore(ctx, session, path, stages)
		return nil
	})
	if lockErr != nil {
		return o.fail(session, lockErr)
	}
	if runErr != nil {
		return o.fail(session, runErr)
	}
	return session, nil
}

func (o *Orchestrator) restore(ctx context.Context, session *Session, path string, stages []plannedStage) error {
	work, err := os.MkdirTemp("", "lifeboat-recover-*")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(work)

	tree, m, err := o.prepare(path, work)
	if err != nil {
		return err
	}
	if session.Level == Selective && !m.HasComponent(stages[0].Component) {
		return fmt.Errorf("%w: %s", apperrors.ErrComponentNotInArchive, stages[0].Component)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Nothing in the project is touched before this snapshot exists.
	session.enter(StatePreSnapshot, o.now())
	snap, err := safety.New(o.cfg, o.executor).Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take pre-recovery snapshot: %w", err)
	}
	session.PreRecoverySnapshot = &SnapshotRef{Path: snap.Path, CreatedAt: snap.CreatedAt}

	ws := &workspace{
		projectRoot: o.cfg.ProjectRoot,
		tree:        tree,
		manifest:    m,
		git:         vcs.New(o.cfg.ProjectRoot, o.executor),
		critical:    make(map[string]bool),
	}
	for _, s := range o.cfg.Checks.CriticalScripts {
		ws.critical[filepath.ToSlash(s)] = true
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		session.enter(StageState(s.n), o.now())
		result := o.runStage(ctx, ws, s.Stage)
		session.StageResults = append(session.StageResults, result)
		if result.err != nil && !session.ContinueOnError {
			return result.err
		}
	}

	session.enter(StateValidate, o.now())
	validation, err := o.validator.Recovery(ctx, o.cfg.ProjectRoot)
	if err != nil {
		return err
	}
	session.Validation = validation
	if !validation.Passed {
		verr := validation.Err()
		if !errors.Is(verr, apperrors.ErrValidationFailed) {
			verr = fmt.Errorf("%w: %w", apperrors.ErrValidationFailed, verr)
		}
		return verr
	}

	session.FinalStatus = validation.Status
	if stageErrs := session.StageErrors(); stageErrs != nil {
		session.FinalStatus = severity.Max(session.FinalStatus, severity.Warning)
		logging.Warn("Recovery finished with failed stages", logging.Err(stageErrs))
	}
	session.FinishedAt = o.now()
	session.enter(StateDone, session.FinishedAt)
	logging.Info("Recovery complete",
		logging.String("session", session.ID),
		logging.String("summary", session.Summary()),
		logging.String("snapshot", snap.Path))
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, ws *workspace, s Stage) StageResult {
	start := time.Now()
	result := StageResult{Stage: s.Name, Component: s.Component}
	defer func() { result.Duration = time.Since(start) }()

	if !ws.manifest.HasComponent(s.Component) {
		result.Skipped = true
		logging.Info("Stage skipped, component not in archive", logging.String("stage", s.Name))
		return result
	}

	result.Attempted = true
	restored, err := s.Restore(ctx, ws)
	if errors.Is(err, errNothingToRestore) {
		result.Skipped = true
		logging.Info("Stage skipped, nothing to restore", logging.String("stage", s.Name))
		return result
	}
	if err == nil {
		err = s.Validate(ctx, ws, restored)
	}
	result.Files = len(restored)
	if err != nil {
		result.err = &apperrors.StageError{Stage: s.Name, Err: err}
		result.Error = err.Error()
		logging.Error("Stage failed", logging.String("stage", s.Name), logging.Err(err))
		return result
	}
	result.Succeeded = true
	logging.Info("Stage restored", logging.String("stage", s.Name), logging.Int("files", result.Files))
	return result
}

// prepare decrypts when needed, validates and extracts the archive into work
// and checks the extracted tree against its manifest.
func (o *Orchestrator) prepare(path, work string) (string, *manifest.Manifest, error) {
	plain := path
	encrypted := strings.HasSuffix(path, crypto.Suffix)
	if !encrypted {
		sealed, err := crypto.IsSealed(path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read archive: %w", err)
		}
		encrypted = sealed
	}
	if encrypted {
		if !o.cfg.HasEncryptionKey() {
			return "", nil, apperrors.ErrEncryptionKeyMissing
		}
		plain = filepath.Join(work, "archive"+archive.Ext)
		if err := crypto.DecryptFile(path, plain, o.cfg.Encryption.Key); err != nil {
			return "", nil, err
		}
	}

	res, err := o.validator.Archive(plain)
	if err != nil {
		return "", nil, err
	}
	if !res.Passed {
		return "", nil, fmt.Errorf("archive %s failed validation: %w", filepath.Base(path), res.Err())
	}

	tree := filepath.Join(work, "tree")
	if err := archive.ExtractFile(plain, tree); err != nil {
		return "", nil, err
	}
	if plain != path {
		_ = os.Remove(plain)
	}
	m, err := manifest.Read(tree)
	if err != nil {
		return "", nil, err
	}
	if vr := manifest.Verify(tree, m); !vr.Passed {
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrManifestMismatch, vr.Err())
	}
	return tree, m, nil
}

func (o *Orchestrator) fail(session *Session, err error) (*Session, error) {
	session.FinalStatus = severity.Error
	session.FinishedAt = o.now()
	session.enter(StateFailed, session.FinishedAt)
	logging.Error("Recovery failed",
		logging.String("session", session.ID),
		logging.String("level", string(session.Level)),
		logging.Err(err))
	return session, err
}

// List returns the archives of class, newest first. An empty class lists
// every archive.
func (o *Orchestrator) List(class store.Class) ([]store.Archive, error) {
	if class == "" {
		return o.store.ListAll()
	}
	if _, err := store.ParseClass(string(class)); err != nil {
		return nil, err
	}
	return o.store.List(class)
}

// FindLatest returns the newest archive of class.
func (o *Orchestrator) FindLatest(class store.Class) (*store.Archive, error) {
	if _, err := store.ParseClass(string(class)); err != nil {
		return nil, err
	}
	return o.store.Latest(class)
}

// ValidateProject runs post-recovery validation on the project as it is now.
func (o *Orchestrator) ValidateProject(ctx context.Context) (*validate.Result, error) {
	return o.validator.Recovery(ctx, o.cfg.ProjectRoot)
}
