package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/backup"
	"github.com/lcrostarosa/lifeboat/internal/cli/runner"
	"github.com/lcrostarosa/lifeboat/internal/retention"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/store"
	"github.com/lcrostarosa/lifeboat/internal/validate"
)

func newBackupCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <daily|weekly|snapshot|manual>",
		Short: "Create a backup archive",
		Long: `Capture every project component into a validated archive in the
backup root, then apply the retention window of the archive's class.

--validate checks an existing archive instead of creating one.
--cleanup-only applies retention to the class without creating an archive.`,
		Example: `  lifeboat backup daily
  lifeboat backup snapshot --encrypt
  lifeboat backup manual --dir /mnt/offsite
  lifeboat backup --validate daily_backup_20260314_150926.tar.gz
  lifeboat backup weekly --cleanup-only`,
		Args: cobra.MaximumNArgs(1),
		RunE: b.Config().Wrap(runBackup),
	}
	f := cmd.Flags()
	f.Bool("encrypt", false, "seal the archive with the configured passphrase")
	f.String("dir", "", "backup root (overrides config and $LIFEBOAT_BACKUP_ROOT)")
	f.String("validate", "", "validate an existing archive and exit")
	f.Bool("cleanup-only", false, "apply retention to the class and exit")
	return cmd
}

func runBackup(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	validatePath := flags.String("validate")
	cleanupOnly := flags.Bool("cleanup-only")
	jsonOut := flags.Bool("json")
	if err := flags.Err(); err != nil {
		return err
	}

	engine := ctx.Backups()
	out := cmd.OutOrStdout()

	if validatePath != "" {
		path, err := store.New(ctx.Config.BackupRoot).Resolve(validatePath)
		if err != nil {
			return err
		}
		res, err := engine.Validate(path)
		if err != nil {
			return err
		}
		if jsonOut {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			printValidation(out, res)
		}
		return res.Err()
	}

	if len(args) == 0 {
		return errors.New("backup class required: daily, weekly, snapshot or manual")
	}
	class, err := store.ParseClass(args[0])
	if err != nil {
		return err
	}

	if cleanupOnly {
		res, err := engine.Cleanup(cmd.Context(), class)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out, res)
		}
		printPrune(out, res)
		return nil
	}

	res, err := engine.Create(cmd.Context(), backup.Options{Class: class, Encrypt: ctx.Config.Encryption.Enabled})
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if jsonOut {
		return printJSON(out, res)
	}
	printBackup(out, res)
	return nil
}

func printBackup(w io.Writer, res *backup.Result) {
	PrintHeader(w, fmt.Sprintf("Backup (%s)", res.Class))

	tw := newTable(w, table.Row{"Component", "Files", "Status", "Note"})
	for _, c := range res.Components {
		status := c.Severity.String()
		if c.Skipped {
			status = "SKIPPED"
		}
		tw.AppendRow(table.Row{c.Name, c.Files, status, c.Message})
	}
	tw.Render()

	fmt.Fprintln(w)
	PrintSuccess(w, "Archive created: %s", res.Path)
	PrintInfo(w, "Size:      %s (%d files, %s before compression)",
		humanize.Bytes(uint64(res.Size)), res.FileCount, humanize.Bytes(uint64(res.TotalSize)))
	PrintInfo(w, "Encrypted: %s", yesNo(res.Encrypted))
	PrintInfo(w, "Duration:  %s", res.Duration.Round(time.Millisecond))
	if res.Validation != nil {
		PrintStatus(w, res.Validation.Status, "Validation: %d files checked", res.Validation.CheckedFiles)
	}
	if res.Pruned != nil {
		printPrune(w, res.Pruned)
	}
}

func printValidation(w io.Writer, res *validate.Result) {
	PrintHeader(w, fmt.Sprintf("Validation: %s", filepath.Base(res.Target)))
	printFindings(w, res.Findings)
	if res.Passed {
		PrintStatus(w, res.Status, "Archive valid (%d files checked, %s)", res.CheckedFiles, humanize.Bytes(uint64(res.Size)))
		return
	}
	PrintStatus(w, severity.Max(res.Status, severity.Error), "Archive failed validation")
}

func printPrune(w io.Writer, res *retention.PruneResult) {
	removed := len(res.Removed) + len(res.PartialsRemoved)
	if removed == 0 {
		PrintInfo(w, "Retention (%s): nothing to remove, %d kept", res.Class, res.Kept)
		return
	}
	PrintInfo(w, "Retention (%s): removed %d, kept %d, freed %s",
		res.Class, removed, res.Kept, humanize.Bytes(uint64(res.FreedBytes)))
	for _, name := range res.Removed {
		PrintInfo(w, "  - %s", name)
	}
	for _, name := range res.PartialsRemoved {
		PrintInfo(w, "  - %s (partial)", name)
	}
}
