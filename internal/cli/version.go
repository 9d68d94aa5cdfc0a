package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/cli/runner"
)

func newVersionCmd(b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: b.Base().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			PrintInfo(cmd.OutOrStdout(), "lifeboat %s (%s, %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		}),
	}
}
