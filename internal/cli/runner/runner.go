package runner

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/config"
)

// ConfigProvider loads the configuration for a command. It receives the
// command so flags such as --config, --project and --dir can take part.
type ConfigProvider func(cmd *cobra.Command) (*config.Config, error)

// CommandRunner chains interceptors for CLI command execution.
type CommandRunner struct {
	interceptors   []Interceptor
	configProvider ConfigProvider
	engines        Engines
}

// NewRunner creates a new CommandRunner with the given config provider.
func NewRunner(provider ConfigProvider) *CommandRunner {
	return &CommandRunner{
		configProvider: provider,
	}
}

// Use adds interceptors to the chain. Returns self for chaining.
func (r *CommandRunner) Use(interceptors ...Interceptor) *CommandRunner {
	r.interceptors = append(r.interceptors, interceptors...)
	return r
}

// WithEngines sets the options handlers' engines are built with.
func (r *CommandRunner) WithEngines(engines Engines) *CommandRunner {
	r.engines = engines
	return r
}

// Clone creates a copy of this runner with its own interceptor chain.
// The config provider and engine options are shared.
func (r *CommandRunner) Clone() *CommandRunner {
	cloned := &CommandRunner{
		interceptors:   make([]Interceptor, len(r.interceptors)),
		configProvider: r.configProvider,
		engines:        r.engines,
	}
	copy(cloned.interceptors, r.interceptors)
	return cloned
}

// CommandFunc is the signature for command handler functions.
type CommandFunc func(ctx *CommandContext, cmd *cobra.Command, args []string) error

// Wrap creates a cobra.RunE function with the interceptor chain applied.
func (r *CommandRunner) Wrap(fn CommandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var cfgErr error
		if r.configProvider != nil {
			cfg, cfgErr = r.configProvider(cmd)
		}
		ctx := NewContext(cfg, cfgErr, r.engines)

		// Build the chain: interceptors wrap the handler
		chain := func() error { return fn(ctx, cmd, args) }

		// Wrap in reverse order so first interceptor runs first
		for i := len(r.interceptors) - 1; i >= 0; i-- {
			interceptor := r.interceptors[i]
			next := chain
			chain = func() error { return interceptor(ctx, cmd, args, next) }
		}

		return chain()
	}
}

// Builder helps construct runners with common interceptor patterns.
type Builder struct {
	provider ConfigProvider
	engines  Engines
	now      func() time.Time
}

// NewBuilder creates a new runner builder with the given config provider.
func NewBuilder(provider ConfigProvider, engines Engines) *Builder {
	return &Builder{provider: provider, engines: engines, now: time.Now}
}

// Base creates a runner with just logging.
func (b *Builder) Base() *CommandRunner {
	return NewRunner(b.provider).WithEngines(b.engines).Use(WithLogging())
}

// Config creates a runner that requires config to be loaded and writes a
// per-invocation log file.
func (b *Builder) Config() *CommandRunner {
	return NewRunner(b.provider).WithEngines(b.engines).Use(
		WithLogging(),
		RequireConfig(),
		WithLogFile(b.now),
	)
}
