package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/assess"
	"github.com/lcrostarosa/lifeboat/internal/cli/runner"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

func newAssessCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess project and host health",
		Long: `Check host resources, external connectivity, critical scripts,
configuration and data integrity, and report a status per domain.

Exit status is 0 when healthy, 1 when warnings were found and 2 when
anything critical was found or the assessment could not run.`,
		Example: `  lifeboat assess
  lifeboat assess --quick
  lifeboat assess --verbose --json`,
		Args: cobra.NoArgs,
		RunE: b.Config().Wrap(runAssess),
	}
	cmd.Flags().Bool("quick", false, "skip script syntax and repository consistency checks")
	return cmd
}

func runAssess(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	quick := flags.Bool("quick")
	verbose := flags.Bool("verbose")
	jsonOut := flags.Bool("json")
	if err := flags.Err(); err != nil {
		return &apperrors.ExitError{Code: 2, Err: err}
	}

	mode := assess.Full
	if quick {
		mode = assess.Quick
	}
	report, err := ctx.Assessor().Assess(cmd.Context(), mode)
	if err != nil {
		return &apperrors.ExitError{Code: 2, Err: fmt.Errorf("assessment failed: %w", err)}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if err := printJSON(out, report); err != nil {
			return &apperrors.ExitError{Code: 2, Err: err}
		}
	} else {
		printReport(cmd, report, verbose)
	}

	if code := assess.ExitCode(report.OverallStatus); code != 0 {
		return &apperrors.ExitError{Code: code}
	}
	return nil
}

func printReport(cmd *cobra.Command, report *assess.Report, verbose bool) {
	out := cmd.OutOrStdout()
	PrintHeader(out, fmt.Sprintf("Assessment (%s)", report.Mode))

	tw := newTable(out, table.Row{"Domain", "Status"})
	for _, d := range assess.Domains() {
		tw.AppendRow(table.Row{d, report.DomainStatus[d]})
	}
	tw.Render()

	findings := report.Problems()
	if verbose {
		findings = report.Findings
	}
	if len(findings) > 0 {
		fmt.Fprintln(out)
		printFindings(out, findings)
	}

	fmt.Fprintln(out)
	PrintStatus(out, report.OverallStatus, "Overall status: %s (health %.0f, grade %s)",
		report.OverallStatus, report.HealthScore, report.Grade)
	for _, r := range report.Recommendations {
		PrintInfo(out, "  • %s", r)
	}
	if report.Path != "" {
		PrintInfo(out, "Report: %s", report.Path)
	}
}
