package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/store"
)

// PrintError prints an error message
func PrintError(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "Error: "+format+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✅ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "⚠️  "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

// PrintHeader prints a section header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
}

// PrintDivider prints a visual divider
func PrintDivider(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("-", 70))
}

// PrintStatus prints a message tagged with its severity.
func PrintStatus(w io.Writer, level severity.Level, format string, args ...any) {
	t := tag(level)
	if isTerminal(w) {
		t = levelColors(level).Sprint(t)
	}
	fmt.Fprintf(w, "%s "+format+"\n", append([]any{t}, args...)...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func levelColors(level severity.Level) text.Colors {
	switch level {
	case severity.OK:
		return text.Colors{text.FgGreen}
	case severity.Info:
		return text.Colors{text.FgCyan}
	case severity.Warning:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed, text.Bold}
	}
}

func tag(level severity.Level) string {
	switch level {
	case severity.OK:
		return "[  OK  ]"
	case severity.Info:
		return "[ INFO ]"
	case severity.Warning:
		return "[ WARN ]"
	case severity.Error:
		return "[ERROR ]"
	default:
		return "[ CRIT ]"
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printFindings(w io.Writer, findings []severity.Finding) {
	if len(findings) == 0 {
		return
	}
	tw := newTable(w, table.Row{"Status", "Domain", "Check", "Message"})
	for _, f := range findings {
		tw.AppendRow(table.Row{f.Severity, f.Domain, f.Check, f.Message})
	}
	tw.Render()
}

func printArchives(w io.Writer, archives []store.Archive, now time.Time) {
	tw := newTable(w, table.Row{"Archive", "Class", "Created", "Size", "Encrypted"})
	for _, a := range archives {
		tw.AppendRow(table.Row{
			a.Name,
			a.Class,
			humanize.RelTime(a.Timestamp, now, "ago", "from now"),
			humanize.Bytes(uint64(a.Size)),
			yesNo(a.Encrypted),
		})
	}
	tw.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
