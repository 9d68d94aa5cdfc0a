package assess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/severity"
)

// Report is the result of one assessment.
type Report struct {
	ID              string                    `json:"id"`
	Mode            Mode                      `json:"mode"`
	ProjectRoot     string                    `json:"project_root"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
	DomainStatus    map[string]severity.Level `json:"domain_status"`
	OverallStatus   severity.Level            `json:"overall_status"`
	Findings        []severity.Finding        `json:"findings"`
	Recommendations []string                  `json:"recommendations"`
	HealthScore     float64                   `json:"health_score"`
	Grade           string                    `json:"grade"`
	Measurements    Measurements              `json:"measurements"`

	// Path is where the report was written; empty when writing failed.
	Path string `json:"-"`
	// MetricsPath is where the gauges were written; empty when writing failed.
	MetricsPath string `json:"-"`
}

// Measurements are the raw readings behind the system and connectivity
// findings. Resource readings are nil when the host could not be read.
type Measurements struct {
	DiskUsedPercent   *float64         `json:"disk_used_percent,omitempty"`
	MemoryUsedPercent *float64         `json:"memory_used_percent,omitempty"`
	Endpoints         []EndpointSample `json:"endpoints,omitempty"`
}

// EndpointSample is the probe outcome of one endpoint.
type EndpointSample struct {
	Name      string        `json:"name"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
}

// ReportFileName returns the report file name for a start time.
func ReportFileName(t time.Time) string {
	return fmt.Sprintf("assessment_%s.json", t.Format("20060102_150405"))
}

// Domain returns the findings of one domain.
func (r *Report) Domain(name string) []severity.Finding {
	var out []severity.Finding
	for _, f := range r.Findings {
		if f.Domain == name {
			out = append(out, f)
		}
	}
	return out
}

// Problems returns findings at warning or worse.
func (r *Report) Problems() []severity.Finding {
	var out []severity.Finding
	for _, f := range r.Findings {
		if f.Severity >= severity.Warning {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) finish(now time.Time) {
	r.FinishedAt = now
	levels := make([]severity.Level, 0, len(r.DomainStatus))
	for _, l := range r.DomainStatus {
		levels = append(levels, l)
	}
	r.OverallStatus = severity.Max(levels...)
	r.Recommendations = recommend(r.OverallStatus, r.Findings)
	r.HealthScore = healthScore(r.Findings)
	r.Grade = grade(r.HealthScore)
}

// healthScore starts at 100 and takes 20 points per critical or error
// finding and 10 per warning, floored at 0.
func healthScore(findings []severity.Finding) float64 {
	score := 100.0
	for _, f := range findings {
		switch {
		case f.Severity >= severity.Error:
			score -= 20
		case f.Severity == severity.Warning:
			score -= 10
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// grade maps a health score to a letter, A being 90 or more.
func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

// Write stores the report as JSON in dir and records its path.
func (r *Report) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, ReportFileName(r.StartedAt))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write report: %w", err)
	}
	r.Path = path
	return nil
}

// ReadReport loads a report written by Write.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", filepath.Base(path), err)
	}
	r.Path = path
	return &r, nil
}

// Per-check advice, keyed by check name.
var advice = map[string]string{
	CheckDiskUsage:        "Free disk space on the project volume before taking backups.",
	CheckMemoryUsage:      "Free memory on the host before running a backup or recovery.",
	CheckUncommitted:      "Commit or stash uncommitted changes before recovering; recovery overwrites tracked files.",
	CheckEndpoint:         "Check network access to the unreachable services; integrations will fail until they respond.",
	CheckEndpointLatency:  "Slow endpoints will stall integrations; check the network path or raise probes.slow_after.",
	CheckScriptPresent:    "Restore missing scripts with: lifeboat recover selective latest scripts",
	CheckScriptExecutable: "Make critical scripts executable (chmod +x) or restore them from a backup.",
	CheckScriptSyntax:     "Fix the script syntax errors reported by bash -n.",
	CheckEnvVar:           "Set the missing environment variables or restore .env with: lifeboat recover quick",
	CheckRequiredFile:     "Restore missing configuration with: lifeboat recover quick",
	CheckRecommendedFile:  "Add the recommended configuration files to keep linting and tests consistent.",
	CheckRepository:       "Repair the repository or rebuild it with: lifeboat recover selective latest source_control",
	CheckRequiredDir:      "Restore missing directories with: lifeboat recover full",
	CheckLogDir:           "Make the log directory writable so runs leave an audit trail.",
}

func recommend(overall severity.Level, findings []severity.Finding) []string {
	var out []string
	switch {
	case overall >= severity.Error:
		out = append(out, "Critical problems found: take a snapshot backup if possible, then run lifeboat recover emergency.")
	case overall == severity.Warning:
		out = append(out, "Warnings found: review them and run a backup before making further changes.")
	default:
		return []string{"No action needed."}
	}
	seen := make(map[string]bool)
	for _, f := range findings {
		if f.Severity < severity.Warning || seen[f.Check] {
			continue
		}
		seen[f.Check] = true
		if a, ok := advice[f.Check]; ok {
			out = append(out, a)
		}
	}
	return out
}
