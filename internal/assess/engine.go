// Package assess inspects a project and its host and reports, per domain,
// how ready they are for work or for recovery.
package assess

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/metrics"
	"github.com/lcrostarosa/lifeboat/internal/probe"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// Mode selects how thorough an assessment is.
type Mode string

// Assessment modes. Quick skips the script syntax check and the repository
// consistency check.
const (
	Quick Mode = "quick"
	Full  Mode = "full"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case Quick, Full:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want quick or full)", apperrors.ErrInvalidMode, s)
}

// Domains, in the order they are assessed
const (
	DomainSystem        = "system"
	DomainConnectivity  = "connectivity"
	DomainScripts       = "scripts"
	DomainConfiguration = "configuration"
	DomainDataIntegrity = "data_integrity"
)

// Domains returns every domain in assessment order.
func Domains() []string {
	return []string{DomainSystem, DomainConnectivity, DomainScripts, DomainConfiguration, DomainDataIntegrity}
}

// Engine runs assessments for one project.
type Engine struct {
	cfg       *config.Config
	executor  command.Executor
	prober    *probe.Prober
	resources Resources
	lookupEnv func(string) (string, bool)
	now       func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithExecutor replaces the command executor used for git and bash.
func WithExecutor(executor command.Executor) Option {
	return func(e *Engine) { e.executor = executor }
}

// WithHTTPClient replaces the client used for endpoint probes.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.prober = probe.New(client, e.cfg.Probes.Timeout) }
}

// WithResources replaces the host resource source.
func WithResources(r Resources) Option {
	return func(e *Engine) { e.resources = r }
}

// WithEnv replaces the process environment lookup.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(e *Engine) { e.lookupEnv = lookup }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an assessment engine.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		executor:  command.NewExecExecutor(),
		prober:    probe.New(nil, cfg.Probes.Timeout),
		resources: hostResources{},
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type check func(ctx context.Context, mode Mode, m *Measurements) []severity.Finding

// Assess runs every domain and writes the report and its gauges into the
// log directory. Only the log directory is ever created; nothing else is
// modified.
func (e *Engine) Assess(ctx context.Context, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	report := &Report{
		ID:           uuid.NewString(),
		Mode:         mode,
		ProjectRoot:  e.cfg.ProjectRoot,
		StartedAt:    e.now(),
		DomainStatus: make(map[string]severity.Level, 5),
	}
	logging.Info("Starting assessment",
		logging.String("id", report.ID),
		logging.String("mode", string(mode)),
		logging.String("project", e.cfg.ProjectRoot))

	checks := map[string]check{
		DomainSystem:        e.checkSystem,
		DomainConnectivity:  e.checkConnectivity,
		DomainScripts:       e.checkScripts,
		DomainConfiguration: e.checkConfiguration,
		DomainDataIntegrity: e.checkDataIntegrity,
	}
	for _, domain := range Domains() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		findings := checks[domain](ctx, mode, &report.Measurements)
		for i := range findings {
			findings[i].Domain = domain
		}
		status := severity.Worst(findings)
		report.DomainStatus[domain] = status
		report.Findings = append(report.Findings, findings...)
		logging.Debug("Domain assessed",
			logging.String("domain", domain),
			logging.String("status", status.String()),
			logging.Int("findings", len(findings)))
	}

	report.finish(e.now())
	if err := report.Write(e.cfg.LogDir); err != nil {
		logging.Warn("Failed to write assessment report", logging.Err(err))
	}
	if path, err := record(report).WriteTextfile(e.cfg.LogDir); err != nil {
		logging.Warn("Failed to write assessment metrics", logging.Err(err))
	} else {
		report.MetricsPath = path
	}

	logging.Info("Assessment complete",
		logging.String("id", report.ID),
		logging.String("status", report.OverallStatus.String()),
		logging.String("grade", report.Grade),
		logging.String("report", report.Path))
	return report, nil
}

func record(report *Report) *metrics.AssessmentRecorder {
	rec := metrics.NewAssessment()
	rec.ObserveHealth(report.HealthScore, report.FinishedAt)
	for domain, status := range report.DomainStatus {
		rec.ObserveDomain(domain, int(status))
	}
	m := report.Measurements
	if m.DiskUsedPercent != nil {
		rec.ObserveResource(metrics.ResourceDisk, *m.DiskUsedPercent)
	}
	if m.MemoryUsedPercent != nil {
		rec.ObserveResource(metrics.ResourceMemory, *m.MemoryUsedPercent)
	}
	for _, ep := range m.Endpoints {
		rec.ObserveEndpoint(ep.Name, ep.Reachable, ep.Latency)
	}
	return rec
}

// ExitCode maps an overall status to the assess exit code: 0 healthy,
// 1 warnings, 2 critical.
func ExitCode(status severity.Level) int {
	switch {
	case status >= severity.Error:
		return 2
	case status == severity.Warning:
		return 1
	default:
		return 0
	}
}

// vcsClient is the project repository as seen through the engine's executor.
func (e *Engine) vcsClient() *vcs.Client {
	return vcs.New(e.cfg.ProjectRoot, e.executor)
}
