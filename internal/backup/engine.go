// Package backup captures a project's logical components into a single
// validated, optionally sealed archive in the backup root.
package backup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/archive"
	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/crypto"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/filelock"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/manifest"
	"github.com/lcrostarosa/lifeboat/internal/metrics"
	"github.com/lcrostarosa/lifeboat/internal/probe"
	"github.com/lcrostarosa/lifeboat/internal/retention"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/store"
	"github.com/lcrostarosa/lifeboat/internal/validate"
)

// Options selects what Create produces.
type Options struct {
	Class   store.Class
	Encrypt bool
}

// ComponentResult reports the capture of one component.
type ComponentResult struct {
	Name     string         `json:"name"`
	Files    int            `json:"files"`
	Skipped  bool           `json:"skipped,omitempty"`
	Severity severity.Level `json:"severity"`
	Message  string         `json:"message,omitempty"`
}

// Result describes a finished backup.
type Result struct {
	Path        string                 `json:"path"`
	Class       store.Class            `json:"class"`
	Encrypted   bool                   `json:"encrypted"`
	Size        int64                  `json:"size"`
	FileCount   int                    `json:"file_count"`
	TotalSize   int64                  `json:"total_size"`
	CreatedAt   time.Time              `json:"created_at"`
	Components  []ComponentResult      `json:"components"`
	Validation  *validate.Result       `json:"validation"`
	Pruned      *retention.PruneResult `json:"pruned,omitempty"`
	MetricsPath string                 `json:"metrics_path,omitempty"`
	Duration    time.Duration          `json:"duration"`
}

// Engine creates backups of one project.
type Engine struct {
	cfg       *config.Config
	store     *store.Store
	executor  command.Executor
	validator *validate.Validator
	retention *retention.Manager
	prober    *probe.Prober
	metrics   *metrics.Recorder
	now       func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithExecutor replaces the command executor used for git.
func WithExecutor(executor command.Executor) Option {
	return func(e *Engine) { e.executor = executor }
}

// WithHTTPClient replaces the client used for endpoint probes.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.prober = probe.New(client, e.cfg.Probes.Timeout) }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a backup engine.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store.New(cfg.BackupRoot),
		executor: command.NewExecExecutor(),
		prober:   probe.New(nil, cfg.Probes.Timeout),
		metrics:  metrics.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validator = validate.New(cfg, e.executor)
	e.retention = retention.New(e.store, cfg.Retention)
	return e
}

// Create captures every component, writes the archive and prunes the class.
// The archive is only visible under its final name once it has validated.
func (e *Engine) Create(ctx context.Context, opts Options) (*Result, error) {
	if _, err := store.ParseClass(string(opts.Class)); err != nil {
		return nil, err
	}
	// Never fall back to an unencrypted archive.
	if opts.Encrypt && !e.cfg.HasEncryptionKey() {
		return nil, apperrors.ErrEncryptionKeyMissing
	}

	if err := os.MkdirAll(e.cfg.BackupRoot, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}

	var result *Result
	lock := filelock.ForDir(e.cfg.BackupRoot)
	err := lock.WithLock(ctx, e.cfg.LockTimeout, func() error {
		var err error
		result, err = e.create(ctx, opts)
		return err
	})
	if err != nil {
		e.metrics.ObserveFailure(opts.Class, e.now())
		e.writeMetrics()
		return nil, err
	}
	return result, nil
}

func (e *Engine) create(ctx context.Context, opts Options) (*Result, error) {
	start := e.now()
	logging.Info("Starting backup",
		logging.String("class", string(opts.Class)),
		logging.Bool("encrypt", opts.Encrypt),
		logging.String("project", e.cfg.ProjectRoot))

	work, err := os.MkdirTemp("", "lifeboat-backup-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(work)

	result := &Result{Class: opts.Class, Encrypted: opts.Encrypt, CreatedAt: start}
	var captured []string
	for _, c := range e.components() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cr, err := c.capture(ctx, e, filepath.Join(work, c.name))
		if err != nil {
			return nil, fmt.Errorf("failed to capture %s: %w", c.name, err)
		}
		cr.Name = c.name
		result.Components = append(result.Components, cr)
		if !cr.Skipped {
			captured = append(captured, c.name)
		}
		logComponent(cr)
	}

	m, err := manifest.Build(work, string(opts.Class), captured, start)
	if err != nil {
		return nil, err
	}
	if err := m.Write(work); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	result.FileCount = m.FileCount
	result.TotalSize = m.TotalSize

	final := e.finalPath(opts.Class, start, opts.Encrypt)
	plainPartial := filepath.Join(e.cfg.BackupRoot, store.PartialName(store.FileName(opts.Class, start, false)))
	defer os.Remove(plainPartial)

	if err := archive.Create(plainPartial, work, manifest.FileName); err != nil {
		return nil, err
	}

	validation, err := e.validator.Archive(plainPartial)
	if err != nil {
		return nil, err
	}
	if !validation.Passed {
		return nil, fmt.Errorf("archive failed validation: %w", validation.Err())
	}

	ready := plainPartial
	if opts.Encrypt {
		sealedPartial := filepath.Join(e.cfg.BackupRoot, store.PartialName(filepath.Base(final)))
		defer os.Remove(sealedPartial)
		if err := crypto.EncryptFile(plainPartial, sealedPartial, e.cfg.Encryption.Key); err != nil {
			return nil, fmt.Errorf("failed to encrypt archive: %w", err)
		}
		if err := os.Remove(plainPartial); err != nil {
			return nil, fmt.Errorf("failed to remove plaintext archive: %w", err)
		}
		validation, err = e.validator.Archive(sealedPartial)
		if err != nil {
			return nil, err
		}
		if !validation.Passed {
			return nil, fmt.Errorf("sealed archive failed validation: %w", validation.Err())
		}
		ready = sealedPartial
	}

	if err := os.Rename(ready, final); err != nil {
		return nil, fmt.Errorf("failed to publish archive: %w", err)
	}
	validation.Target = final
	result.Validation = validation
	result.Path = final
	if info, err := os.Stat(final); err == nil {
		result.Size = info.Size()
	}

	pruned, err := e.retention.PruneClass(opts.Class)
	if err != nil {
		// The archive is already safe; a failed prune is reported, not fatal.
		logging.Warn("Retention failed", logging.String("class", string(opts.Class)), logging.Err(err))
	}
	result.Pruned = pruned

	result.Duration = e.now().Sub(start)
	stats := metrics.BackupStats{
		Class:      opts.Class,
		Size:       result.Size,
		Files:      result.FileCount,
		Duration:   result.Duration,
		FinishedAt: e.now(),
	}
	if pruned != nil {
		stats.Pruned = len(pruned.Removed)
	}
	e.metrics.ObserveBackup(stats)
	result.MetricsPath = e.writeMetrics()

	logging.Info("Backup complete",
		logging.String("archive", final),
		logging.Int("files", result.FileCount),
		logging.Int64("bytes", result.Size),
		logging.Duration("duration", result.Duration))
	return result, nil
}

// finalPath returns an unused archive name, moving forward a second at a
// time when two backups of a class land in the same second.
func (e *Engine) finalPath(class store.Class, t time.Time, encrypted bool) string {
	for {
		p := e.store.Path(class, t, encrypted)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
		t = t.Add(time.Second)
	}
}

func (e *Engine) writeMetrics() string {
	if err := e.metrics.ObserveStore(e.store); err != nil {
		logging.Warn("Failed to inventory archives for metrics", logging.Err(err))
	}
	path, err := e.metrics.WriteTextfile(e.cfg.BackupRoot)
	if err != nil {
		logging.Warn("Failed to write metrics", logging.Err(err))
		return ""
	}
	return path
}

// Validate runs archive validation only.
func (e *Engine) Validate(path string) (*validate.Result, error) {
	return e.validator.Archive(path)
}

// Cleanup runs retention for class only, under the backup-root lock.
func (e *Engine) Cleanup(ctx context.Context, class store.Class) (*retention.PruneResult, error) {
	if _, err := store.ParseClass(string(class)); err != nil {
		return nil, err
	}
	if !e.store.Exists() {
		return &retention.PruneResult{Class: class, Window: e.retention.Window(class)}, nil
	}
	var result *retention.PruneResult
	err := filelock.ForDir(e.cfg.BackupRoot).WithLock(ctx, e.cfg.LockTimeout, func() error {
		var err error
		result, err = e.retention.PruneClass(class)
		return err
	})
	return result, err
}

func logComponent(cr ComponentResult) {
	fields := []any{"component", cr.Name, "files", cr.Files}
	switch {
	case cr.Skipped:
		logging.S().Infow("Component skipped: "+cr.Message, fields...)
	case cr.Severity >= severity.Warning:
		logging.S().Warnw("Component captured with warnings: "+cr.Message, fields...)
	default:
		logging.S().Debugw("Component captured", fields...)
	}
}
