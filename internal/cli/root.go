package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/cli/runner"
	"github.com/lcrostarosa/lifeboat/internal/config"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/logging"
)

// Version is set at build time
var Version = "dev"

// SetVersion sets the version string
func SetVersion(v string) {
	Version = v
}

// NewRootCommand builds the command tree. Engines lets tests replace the
// executors, clocks and probes the commands use.
func NewRootCommand(engines runner.Engines) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifeboat",
		Short: "Project backup, health assessment and disaster recovery",
		Long: `Lifeboat captures a project's configuration, scripts, integrations,
documentation, tests, databases and repository state into verifiable
archives, assesses whether the project and its host are healthy, and
restores the project from those archives in staged, validated steps.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default <project>/lifeboat.yaml)")
	pf.String("project", "", "project root (default $LIFEBOAT_PROJECT_ROOT or the working directory)")
	pf.BoolP("verbose", "v", false, "debug logging and full finding lists")
	pf.Bool("json", false, "print results as JSON")

	builder := runner.NewBuilder(loadConfig, engines)
	rootCmd.AddCommand(
		newAssessCmd(builder),
		newBackupCmd(builder),
		newRecoverCmd(builder),
		newVersionCmd(builder),
	)
	return rootCmd
}

// Execute runs the CLI and returns the process exit code. Cancelling ctx
// stops a running backup or recovery between steps.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand(runner.Engines{})
	err := cmd.ExecuteContext(ctx)
	_ = logging.Sync()
	return exitCode(err, cmd)
}

func exitCode(err error, cmd *cobra.Command) int {
	if err == nil {
		return 0
	}
	var exitErr *apperrors.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			PrintError(cmd.ErrOrStderr(), "%v", exitErr.Err)
		}
		return exitErr.Code
	}
	PrintError(cmd.ErrOrStderr(), "%v", err)
	return 1
}

func initLogging(cmd *cobra.Command) error {
	cfg := logging.DefaultConfig()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Level = "debug"
	}
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		cfg.JSON = true
	}
	return logging.Init(cfg)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := runner.Flags(cmd)
	opts := config.LoadOptions{
		File:        flags.String("config"),
		ProjectRoot: flags.String("project"),
		Flags:       cmd.Flags(),
	}
	if err := flags.Err(); err != nil {
		return nil, err
	}
	return config.Load(opts)
}
