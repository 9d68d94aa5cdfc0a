package runner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/logging"
)

// Interceptor is a function that wraps command execution.
type Interceptor func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error

// RequireConfig ensures the configuration is loaded before executing the command.
func RequireConfig() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		if ctx.ConfigErr != nil {
			return ctx.ConfigErr
		}
		if ctx.Config == nil {
			return ErrNotInitialized
		}
		return next()
	}
}

// WithLogging logs command execution.
func WithLogging() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		logging.Debug("CLI command", logging.String("cmd", cmd.Name()), logging.Strings("args", args))
		err := next()
		if err != nil {
			logging.Debug("CLI error", logging.String("cmd", cmd.Name()), logging.Err(err))
		}
		return err
	}
}

// WithLogFile tees the invocation's log into a timestamped file in the
// configured log directory. Failing to open the file is logged, not fatal.
// Requires config to be loaded.
func WithLogFile(now func() time.Time) Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		if !ctx.HasConfig() {
			return next()
		}
		level := "info"
		if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
			level = "debug"
		}
		jsonOut, _ := cmd.Flags().GetBool("json")

		path := filepath.Join(ctx.Config.LogDir, logging.FileName(cmd.Name(), now()))
		if err := logging.Init(logging.Config{Level: level, JSON: jsonOut, FilePath: path}); err != nil {
			logging.Warn("Per-invocation log file unavailable", logging.String("path", path), logging.Err(err))
		} else {
			ctx.LogFile = path
		}

		logging.Info("Invocation started",
			logging.String("cmd", cmd.CommandPath()),
			logging.String("args", strings.Join(args, " ")),
			logging.String("project", ctx.Config.ProjectRoot))
		err := next()
		if err != nil {
			logging.Error("Invocation failed", logging.String("cmd", cmd.Name()), logging.Err(err))
		} else {
			logging.Info("Invocation finished", logging.String("cmd", cmd.Name()))
		}
		return err
	}
}
