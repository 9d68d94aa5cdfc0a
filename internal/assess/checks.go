package assess

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/fsutil"
	"github.com/lcrostarosa/lifeboat/internal/severity"
)

// Check names
const (
	CheckDiskUsage        = "disk_usage"
	CheckMemoryUsage      = "memory_usage"
	CheckUncommitted      = "uncommitted_changes"
	CheckEndpoint         = "endpoint"
	CheckEndpointLatency  = "endpoint_latency"
	CheckScriptPresent    = "script_present"
	CheckScriptExecutable = "script_executable"
	CheckScriptSyntax     = "script_syntax"
	CheckEnvVar           = "env_var"
	CheckRequiredFile     = "required_file"
	CheckRecommendedFile  = "recommended_file"
	CheckRepository       = "repository_consistency"
	CheckRequiredDir      = "required_dir"
	CheckLogDir           = "log_dir"
)

func finding(check string, level severity.Level, format string, args ...any) severity.Finding {
	return severity.Finding{Check: check, Severity: level, Message: fmt.Sprintf(format, args...)}
}

// threshold grades a usage percentage.
func threshold(pct, warn, critical float64) severity.Level {
	switch {
	case pct >= critical:
		return severity.Critical
	case pct >= warn:
		return severity.Warning
	default:
		return severity.OK
	}
}

func (e *Engine) checkSystem(ctx context.Context, _ Mode, m *Measurements) []severity.Finding {
	var out []severity.Finding
	c := e.cfg.Checks

	if pct, err := e.resources.DiskUsedPercent(ctx, e.cfg.ProjectRoot); err != nil {
		out = append(out, finding(CheckDiskUsage, severity.Warning, "unable to read disk usage: %v", err))
	} else {
		m.DiskUsedPercent = &pct
		out = append(out, finding(CheckDiskUsage, threshold(pct, c.DiskWarnPercent, c.DiskCriticalPercent),
			"disk %.1f%% used", pct))
	}

	if pct, err := e.resources.MemoryUsedPercent(ctx); err != nil {
		out = append(out, finding(CheckMemoryUsage, severity.Warning, "unable to read memory usage: %v", err))
	} else {
		m.MemoryUsedPercent = &pct
		out = append(out, finding(CheckMemoryUsage, threshold(pct, c.MemWarnPercent, c.MemCriticalPercent),
			"memory %.1f%% used", pct))
	}

	git := e.vcsClient()
	if !git.IsRepository(ctx) {
		return append(out, finding(CheckUncommitted, severity.Info, "project is not a git repository"))
	}
	changes, err := git.Status(ctx)
	switch {
	case err != nil:
		out = append(out, finding(CheckUncommitted, severity.Warning, "unable to read repository status: %s", apperrors.SanitizeError(err)))
	case len(changes) > 0:
		out = append(out, finding(CheckUncommitted, severity.Warning, "%d uncommitted changes", len(changes)))
	default:
		out = append(out, finding(CheckUncommitted, severity.OK, "working tree clean"))
	}
	return out
}

func (e *Engine) checkConnectivity(ctx context.Context, _ Mode, m *Measurements) []severity.Finding {
	endpoints := e.cfg.Probes.Endpoints
	if len(endpoints) == 0 {
		return []severity.Finding{finding(CheckEndpoint, severity.Info, "no endpoints configured")}
	}
	slow := e.cfg.Probes.SlowAfter
	out := make([]severity.Finding, 0, len(endpoints))
	for _, r := range e.prober.Probe(ctx, endpoints) {
		m.Endpoints = append(m.Endpoints, EndpointSample{Name: r.Name, Reachable: r.Reachable, Latency: r.Latency})
		if !r.Reachable {
			out = append(out, finding(CheckEndpoint, severity.Critical, "%s unreachable: %s",
				r.Name, apperrors.SanitizeString(r.Error)))
			continue
		}
		latency := r.Latency.Round(time.Millisecond)
		if slow > 0 && r.Latency >= slow {
			out = append(out, finding(CheckEndpointLatency, severity.Warning, "%s slow (status %d, %s, threshold %s)",
				r.Name, r.StatusCode, latency, slow))
			continue
		}
		out = append(out, finding(CheckEndpoint, severity.OK, "%s reachable (status %d, %s)",
			r.Name, r.StatusCode, latency))
	}
	return out
}

func (e *Engine) checkScripts(ctx context.Context, mode Mode, _ *Measurements) []severity.Finding {
	var out []severity.Finding
	for _, rel := range e.cfg.Checks.CriticalScripts {
		path := e.cfg.ProjectPath(rel)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			out = append(out, finding(CheckScriptPresent, severity.Critical, "%s missing", rel))
			continue
		}
		if !fsutil.IsExecutable(path) {
			out = append(out, finding(CheckScriptExecutable, severity.Warning, "%s is not executable", rel))
		} else {
			out = append(out, finding(CheckScriptExecutable, severity.OK, "%s present and executable", rel))
		}
		if mode != Full {
			continue
		}
		if _, err := e.executor.Run(ctx, e.cfg.ProjectRoot, "bash", "-n", path); err != nil {
			out = append(out, finding(CheckScriptSyntax, severity.Warning, "%s has syntax errors: %s",
				rel, apperrors.SanitizeError(err)))
		}
	}
	return out
}

func (e *Engine) checkConfiguration(_ context.Context, _ Mode, _ *Measurements) []severity.Finding {
	var out []severity.Finding

	// Variables may come from the process or from the project's .env file.
	dotenv, err := gotenv.Read(e.cfg.ProjectPath(".env"))
	if err != nil && !os.IsNotExist(err) {
		out = append(out, finding(CheckEnvVar, severity.Warning, "unable to parse .env: %v", err))
	}
	for _, name := range e.cfg.Checks.RequiredEnv {
		if v, ok := e.lookupEnv(name); ok && v != "" {
			out = append(out, finding(CheckEnvVar, severity.OK, "%s set in environment", name))
			continue
		}
		if dotenv[name] != "" {
			out = append(out, finding(CheckEnvVar, severity.OK, "%s set in .env", name))
			continue
		}
		out = append(out, finding(CheckEnvVar, severity.Critical, "%s is not set", name))
	}

	for _, rel := range e.cfg.Checks.RequiredFiles {
		if fsutil.Exists(e.cfg.ProjectPath(rel)) {
			out = append(out, finding(CheckRequiredFile, severity.OK, "%s present", rel))
		} else {
			out = append(out, finding(CheckRequiredFile, severity.Critical, "%s missing", rel))
		}
	}
	for _, rel := range e.cfg.Checks.RecommendedFiles {
		if !fsutil.Exists(e.cfg.ProjectPath(rel)) {
			out = append(out, finding(CheckRecommendedFile, severity.Warning, "%s missing", rel))
		}
	}
	return out
}

func (e *Engine) checkDataIntegrity(ctx context.Context, mode Mode, _ *Measurements) []severity.Finding {
	var out []severity.Finding

	if git := e.vcsClient(); mode == Full && git.HasGitDir() {
		if err := git.Fsck(ctx); err != nil {
			out = append(out, finding(CheckRepository, severity.Critical, "%s", apperrors.SanitizeError(err)))
		} else {
			out = append(out, finding(CheckRepository, severity.OK, "repository consistent"))
		}
	}

	for _, rel := range e.cfg.Checks.RequiredDirs {
		info, err := os.Stat(e.cfg.ProjectPath(rel))
		if err != nil || !info.IsDir() {
			out = append(out, finding(CheckRequiredDir, severity.Critical, "%s/ missing", rel))
		}
	}

	return append(out, e.checkLogDir()...)
}

// checkLogDir creates the log directory when absent and proves it writable.
func (e *Engine) checkLogDir() []severity.Finding {
	dir := e.cfg.LogDir
	var out []severity.Finding
	if !fsutil.Exists(dir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return []severity.Finding{finding(CheckLogDir, severity.Warning, "unable to create log directory %s: %v", dir, err)}
		}
		out = append(out, finding(CheckLogDir, severity.Info, "created log directory %s", dir))
	}

	f, err := os.CreateTemp(dir, ".lifeboat-write-*")
	if err != nil {
		return append(out, finding(CheckLogDir, severity.Warning, "log directory %s is not writable", dir))
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return out
}
