package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/cli/runner"
	"github.com/lcrostarosa/lifeboat/internal/recovery"
	"github.com/lcrostarosa/lifeboat/internal/store"
)

// latestArchive stands in for the ARCHIVE argument to let recovery pick
// the archive itself.
const latestArchive = "latest"

func newRecoverCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <quick|full|selective|emergency> [ARCHIVE] [COMPONENT]",
		Short: "Restore the project from a backup archive",
		Long: `Restore the project in validated stages. A snapshot of the current
project is always taken before anything is changed.

  quick      restore configuration only
  full       restore every component in order
  selective  restore one component (configuration, scripts, integration_config,
             documentation, source_control or tests)
  emergency  pick the best archive, try quick, then escalate to full

ARCHIVE is a path or a name in the backup root; omit it or pass "latest" to
use the newest daily archive, then weekly, then snapshot. A selective
recovery given a single argument treats it as the component.`,
		Example: `  lifeboat recover quick
  lifeboat recover full daily_backup_20260314_150926.tar.gz
  lifeboat recover selective scripts
  lifeboat recover selective latest documentation
  lifeboat recover emergency
  lifeboat recover --list daily
  lifeboat recover --find-latest weekly
  lifeboat recover --validate`,
		Args: cobra.MaximumNArgs(3),
		RunE: b.Config().Wrap(runRecover),
	}
	f := cmd.Flags()
	f.String("list", "", "list archives of a class (or \""+runner.AllClasses+"\") and exit")
	f.String("find-latest", "", "print the newest archive of a class and exit")
	f.Bool("validate", false, "validate the project as it is now and exit")
	f.Bool("continue-on-error", false, "keep a full recovery going past failed stages")
	return cmd
}

func runRecover(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	var listClass, latestClass store.Class
	if flags.Changed("list") {
		listClass = flags.Class("list")
	}
	if flags.Changed("find-latest") {
		latestClass = flags.Class("find-latest")
	}
	validateOnly := flags.Bool("validate")
	continueOnError := flags.Bool("continue-on-error")
	jsonOut := flags.Bool("json")
	if err := flags.Err(); err != nil {
		return err
	}

	orch := ctx.Recovery()
	out := cmd.OutOrStdout()

	switch {
	case flags.Changed("list"):
		archives, err := orch.List(listClass)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out, archives)
		}
		if len(archives) == 0 {
			PrintInfo(out, "No archives in %s", ctx.Config.BackupRoot)
			return nil
		}
		printArchives(out, archives, time.Now())
		return nil

	case flags.Changed("find-latest"):
		a, err := orch.FindLatest(latestClass)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out, a)
		}
		PrintInfo(out, "%s", a.Path)
		return nil

	case validateOnly:
		res, err := orch.ValidateProject(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			PrintHeader(out, "Project validation")
			printFindings(out, res.Findings)
			PrintStatus(out, res.Status, "Project status: %s", res.Status)
		}
		return res.Err()
	}

	req, err := parseRecoverArgs(args)
	if err != nil {
		return err
	}
	req.ContinueOnError = continueOnError

	if req.Level == recovery.Emergency {
		res, err := orch.Emergency(cmd.Context())
		if jsonOut && res != nil {
			if jerr := printJSON(out, res); jerr != nil {
				return jerr
			}
		} else if res != nil {
			printEmergency(out, res)
		}
		return err
	}

	session, err := orch.Recover(cmd.Context(), req)
	if session != nil {
		if jsonOut {
			if jerr := printJSON(out, session); jerr != nil {
				return jerr
			}
		} else {
			printSession(out, session)
		}
	}
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	return nil
}

// parseRecoverArgs maps LEVEL [ARCHIVE] [COMPONENT] onto a request.
func parseRecoverArgs(args []string) (recovery.Request, error) {
	if len(args) == 0 {
		return recovery.Request{}, errors.New("recovery level required: quick, full, selective or emergency")
	}
	level, err := recovery.ParseLevel(args[0])
	if err != nil {
		return recovery.Request{}, err
	}
	req := recovery.Request{Level: level}
	rest := args[1:]

	if level == recovery.Selective {
		switch len(rest) {
		case 0:
			return req, errors.New("selective recovery needs a component")
		case 1:
			req.Component = rest[0]
		default:
			req.Archive, req.Component = rest[0], rest[1]
		}
	} else {
		if len(rest) > 1 {
			return req, fmt.Errorf("%s recovery takes at most one archive argument", level)
		}
		if len(rest) == 1 {
			req.Archive = rest[0]
		}
	}
	if strings.EqualFold(req.Archive, latestArchive) {
		req.Archive = ""
	}
	return req, nil
}

func printSession(w io.Writer, s *recovery.Session) {
	PrintHeader(w, fmt.Sprintf("Recovery (%s)", s.Level))
	PrintInfo(w, "Session:  %s", s.ID)
	PrintInfo(w, "Archive:  %s", s.SourceArchive)
	if s.PreRecoverySnapshot != nil {
		PrintInfo(w, "Snapshot: %s", s.PreRecoverySnapshot.Path)
	}

	if len(s.StageResults) > 0 {
		tw := newTable(w, table.Row{"Stage", "Result", "Files", "Duration", "Error"})
		for _, r := range s.StageResults {
			tw.AppendRow(table.Row{r.Stage, stageOutcome(r), r.Files, r.Duration.Round(time.Millisecond), r.Error})
		}
		tw.Render()
	}

	if s.Succeeded() {
		PrintStatus(w, s.FinalStatus, "Recovery %s: %s", strings.ToLower(string(s.State)), s.Summary())
		return
	}
	PrintStatus(w, s.FinalStatus, "Recovery failed in state %s: %s", s.State, s.Summary())
}

func stageOutcome(r recovery.StageResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Succeeded:
		return "restored"
	default:
		return "failed"
	}
}

func printEmergency(w io.Writer, res *recovery.EmergencyResult) {
	PrintWarning(w, "Emergency recovery from %s (%s)", res.Archive.Name, res.Archive.Class)
	for i, s := range res.Attempts {
		if i > 0 {
			PrintDivider(w)
		}
		printSession(w, s)
	}
	if res.Escalated {
		PrintInfo(w, "Quick recovery failed; escalated to full recovery.")
	}
}
