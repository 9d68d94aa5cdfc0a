package runner

import (
	"sync"

	"github.com/lcrostarosa/lifeboat/internal/assess"
	"github.com/lcrostarosa/lifeboat/internal/backup"
	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/recovery"
)

// Engines holds the options command engines are built with. Tests use it to
// swap executors, clocks and resource probes.
type Engines struct {
	Assess   []assess.Option
	Backup   []backup.Option
	Recovery []recovery.Option
}

// CommandContext provides shared dependencies to command handlers.
// Engines are lazily initialized on first access to avoid unnecessary work.
type CommandContext struct {
	// Config is the loaded configuration (may be nil if loading failed)
	Config *config.Config

	// ConfigErr is the error from loading config, if any
	ConfigErr error

	// LogFile is the per-invocation log file, once WithLogFile has opened it
	LogFile string

	engines Engines

	assessor     *assess.Engine
	assessorOnce sync.Once
	backups      *backup.Engine
	backupsOnce  sync.Once
	recovery     *recovery.Orchestrator
	recoveryOnce sync.Once
}

// NewContext creates a new CommandContext with the given config.
func NewContext(cfg *config.Config, cfgErr error, engines Engines) *CommandContext {
	return &CommandContext{
		Config:    cfg,
		ConfigErr: cfgErr,
		engines:   engines,
	}
}

// HasConfig returns true if config is loaded successfully.
func (c *CommandContext) HasConfig() bool {
	return c.Config != nil && c.ConfigErr == nil
}

// Assessor returns a lazily-initialized assessment engine.
// Returns nil if config is not loaded.
func (c *CommandContext) Assessor() *assess.Engine {
	c.assessorOnce.Do(func() {
		if c.HasConfig() {
			c.assessor = assess.New(c.Config, c.engines.Assess...)
		}
	})
	return c.assessor
}

// Backups returns a lazily-initialized backup engine.
// Returns nil if config is not loaded.
func (c *CommandContext) Backups() *backup.Engine {
	c.backupsOnce.Do(func() {
		if c.HasConfig() {
			c.backups = backup.New(c.Config, c.engines.Backup...)
		}
	})
	return c.backups
}

// Recovery returns a lazily-initialized recovery orchestrator.
// Returns nil if config is not loaded.
func (c *CommandContext) Recovery() *recovery.Orchestrator {
	c.recoveryOnce.Do(func() {
		if c.HasConfig() {
			c.recovery = recovery.New(c.Config, c.engines.Recovery...)
		}
	})
	return c.recovery
}
