package assess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/lifeboat/internal/command"
	"github.com/lcrostarosa/lifeboat/internal/config"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/metrics"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/testutil"
)

var assessTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeResources struct {
	disk, mem float64
	err       error
}

func (f fakeResources) DiskUsedPercent(context.Context, string) (float64, error) {
	return f.disk, f.err
}

func (f fakeResources) MemoryUsedPercent(context.Context) (float64, error) {
	return f.mem, f.err
}

func noEnv(string) (string, bool) { return "", false }

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func newEngine(cfg *config.Config, opts ...Option) (*Engine, *command.FakeExecutor) {
	exec := command.NewFakeExecutor()
	base := []Option{
		WithExecutor(exec),
		WithResources(fakeResources{disk: 40, mem: 35}),
		WithEnv(noEnv),
		WithClock(func() time.Time { return assessTime }),
	}
	return New(cfg, append(base, opts...)...), exec
}

func findingsOf(r *Report, check string) []severity.Finding {
	var out []severity.Finding
	for _, f := range r.Findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("FULL")
	require.NoError(t, err)
	assert.Equal(t, Full, m)

	_, err = ParseMode("deep")
	assert.ErrorIs(t, err, apperrors.ErrInvalidMode)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status severity.Level
		want   int
	}{
		{severity.OK, 0},
		{severity.Info, 0},
		{severity.Warning, 1},
		{severity.Error, 2},
		{severity.Critical, 2},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.status))
		})
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		pct  float64
		want severity.Level
	}{
		{0, severity.OK},
		{79.9, severity.OK},
		{80, severity.Warning},
		{89.9, severity.Warning},
		{90, severity.Critical},
		{100, severity.Critical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, threshold(tt.pct, 80, 90), "pct %.1f", tt.pct)
	}
}

func TestAssessHealthyProject(t *testing.T) {
	f := testutil.NewProjectFixture(t).MustBuild()
	e, exec := newEngine(f.Config)

	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, Quick, report.Mode)
	assert.Len(t, report.DomainStatus, len(Domains()))
	assert.LessOrEqual(t, report.OverallStatus, severity.Info)
	assert.Equal(t, 0, ExitCode(report.OverallStatus))
	assert.Empty(t, report.Problems())
	assert.Equal(t, []string{"No action needed."}, report.Recommendations)

	for _, c := range exec.Commands() {
		assert.False(t, strings.HasPrefix(c, "bash"), "quick mode skips the syntax check: %s", c)
	}

	// Required env vars come from the fixture's .env file.
	for _, fd := range findingsOf(report, CheckEnvVar) {
		assert.Equal(t, severity.OK, fd.Severity)
		assert.Contains(t, fd.Message, ".env")
	}

	require.NotEmpty(t, report.Path)
	assert.Equal(t, filepath.Join(f.Config.LogDir, "assessment_20260314_093000.json"), report.Path)
	back, err := ReadReport(report.Path)
	require.NoError(t, err)
	assert.Equal(t, report.ID, back.ID)
	assert.Equal(t, report.OverallStatus, back.OverallStatus)
	assert.Equal(t, report.DomainStatus, back.DomainStatus)
	assert.Equal(t, 100.0, back.HealthScore)
	assert.Equal(t, "A", back.Grade)

	require.Equal(t, filepath.Join(f.Config.LogDir, metrics.AssessmentFileName), report.MetricsPath)
	data, err := os.ReadFile(report.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lifeboat_assessment_health_score 100")
	assert.Contains(t, string(data), `lifeboat_assessment_resource_used_percent{resource="disk"} 40`)
	assert.Contains(t, string(data), `lifeboat_assessment_domain_status{domain="system"}`)
}

func TestAssessSystemResources(t *testing.T) {
	f := testutil.NewProjectFixture(t).MustBuild()

	e, _ := newEngine(f.Config, WithResources(fakeResources{disk: 85, mem: 95}))
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	assert.Equal(t, severity.Warning, findingsOf(report, CheckDiskUsage)[0].Severity)
	assert.Equal(t, severity.Critical, findingsOf(report, CheckMemoryUsage)[0].Severity)
	assert.Equal(t, severity.Critical, report.DomainStatus[DomainSystem])
	assert.Equal(t, severity.Critical, report.OverallStatus)
	assert.Equal(t, 2, ExitCode(report.OverallStatus))
	assert.Contains(t, report.Recommendations, advice[CheckMemoryUsage])
	require.NotNil(t, report.Measurements.DiskUsedPercent)
	assert.Equal(t, 85.0, *report.Measurements.DiskUsedPercent)
	assert.Equal(t, 95.0, *report.Measurements.MemoryUsedPercent)
	assert.LessOrEqual(t, report.HealthScore, 70.0)

	e, _ = newEngine(f.Config, WithResources(fakeResources{err: errors.New("no procfs")}))
	report, err = e.Assess(context.Background(), Quick)
	require.NoError(t, err)
	assert.Equal(t, severity.Warning, report.DomainStatus[DomainSystem])
	assert.Nil(t, report.Measurements.DiskUsedPercent)
	assert.Nil(t, report.Measurements.MemoryUsedPercent)
}

func TestAssessScripts(t *testing.T) {
	f := testutil.NewProjectFixture(t).Without("scripts/run-checks.sh").MustBuild()
	require.NoError(t, os.Chmod(f.Path("scripts/linear-sync.sh"), 0o644))

	e, _ := newEngine(f.Config)
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	missing := findingsOf(report, CheckScriptPresent)
	require.Len(t, missing, 1)
	assert.Equal(t, severity.Critical, missing[0].Severity)
	assert.Contains(t, missing[0].Message, "scripts/run-checks.sh")

	var notExec []string
	for _, fd := range findingsOf(report, CheckScriptExecutable) {
		if fd.Severity == severity.Warning {
			notExec = append(notExec, fd.Message)
		}
	}
	require.Len(t, notExec, 1)
	assert.Contains(t, notExec[0], "scripts/linear-sync.sh")
	assert.Equal(t, severity.Critical, report.DomainStatus[DomainScripts])
}

func TestAssessFullModeChecksSyntax(t *testing.T) {
	f := testutil.NewProjectFixture(t).MustBuild()
	e, exec := newEngine(f.Config)
	exec.RunFn = func(_ context.Context, call command.Call) (string, error) {
		if call.Name == "bash" && strings.HasSuffix(call.Args[len(call.Args)-1], "run-checks.sh") {
			return "", &apperrors.CommandError{Command: "bash", Args: call.Args, Output: "syntax error near unexpected token", Err: apperrors.ErrCommandFailed}
		}
		return "", nil
	}

	report, err := e.Assess(context.Background(), Full)
	require.NoError(t, err)

	syntax := findingsOf(report, CheckScriptSyntax)
	require.Len(t, syntax, 1)
	assert.Equal(t, severity.Warning, syntax[0].Severity)
	assert.Contains(t, syntax[0].Message, "scripts/run-checks.sh")
	assert.Equal(t, severity.Warning, report.OverallStatus)
	assert.Equal(t, 1, ExitCode(report.OverallStatus))

	var bashCalls int
	for _, c := range exec.Commands() {
		if strings.HasPrefix(c, "bash -n ") {
			bashCalls++
		}
	}
	assert.Equal(t, len(f.Config.Checks.CriticalScripts), bashCalls)
}

func TestAssessConfiguration(t *testing.T) {
	f := testutil.NewProjectFixture(t).
		WithFile(".env", "LINEAR_API_KEY=lin_live\n").
		Without("package.json").
		Without(".prettierrc").
		MustBuild()

	e, _ := newEngine(f.Config, WithEnv(envOf(map[string]string{"GITHUB_TOKEN": "ghp_env"})))
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)
	for _, fd := range findingsOf(report, CheckEnvVar) {
		assert.Equal(t, severity.OK, fd.Severity, fd.Message)
	}

	e, _ = newEngine(f.Config, WithEnv(envOf(map[string]string{"GITHUB_TOKEN": ""})))
	report, err = e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	var missingEnv []string
	for _, fd := range findingsOf(report, CheckEnvVar) {
		if fd.Severity == severity.Critical {
			missingEnv = append(missingEnv, fd.Message)
		}
	}
	assert.Equal(t, []string{"GITHUB_TOKEN is not set"}, missingEnv)

	var required []severity.Finding
	for _, fd := range findingsOf(report, CheckRequiredFile) {
		if fd.Severity != severity.OK {
			required = append(required, fd)
		}
	}
	require.Len(t, required, 1)
	assert.Equal(t, severity.Critical, required[0].Severity)
	assert.Contains(t, required[0].Message, "package.json")

	recommended := findingsOf(report, CheckRecommendedFile)
	require.Len(t, recommended, 1)
	assert.Equal(t, severity.Warning, recommended[0].Severity)
	assert.Contains(t, recommended[0].Message, ".prettierrc")

	assert.Equal(t, severity.Critical, report.DomainStatus[DomainConfiguration])
	assert.Contains(t, report.Recommendations, advice[CheckRequiredFile])
}

func TestAssessConnectivity(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	f := testutil.NewProjectFixture(t).MustBuild()
	f.Config.Probes.Endpoints = []config.Endpoint{
		{Name: "github", URL: up.URL},
		{Name: "linear", URL: down.URL + "/?token=secret-value"},
	}
	f.Config.Probes.Timeout = 2 * time.Second

	e, _ := newEngine(f.Config)
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	endpoints := findingsOf(report, CheckEndpoint)
	require.Len(t, endpoints, 2)
	assert.Equal(t, severity.OK, endpoints[0].Severity)
	assert.Contains(t, endpoints[0].Message, "github reachable")
	assert.Equal(t, severity.Critical, endpoints[1].Severity)
	assert.Contains(t, endpoints[1].Message, "linear unreachable")
	assert.Equal(t, severity.Critical, report.DomainStatus[DomainConnectivity])

	samples := report.Measurements.Endpoints
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Reachable)
	assert.Positive(t, samples[0].Latency)
	assert.False(t, samples[1].Reachable)
}

func TestAssessSlowEndpoint(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	f := testutil.NewProjectFixture(t).MustBuild()
	f.Config.Probes.Endpoints = []config.Endpoint{{Name: "github", URL: slow.URL}}
	f.Config.Probes.Timeout = 2 * time.Second
	f.Config.Probes.SlowAfter = 10 * time.Millisecond

	e, _ := newEngine(f.Config)
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	latency := findingsOf(report, CheckEndpointLatency)
	require.Len(t, latency, 1)
	assert.Equal(t, severity.Warning, latency[0].Severity)
	assert.Contains(t, latency[0].Message, "github slow")
	assert.Empty(t, findingsOf(report, CheckEndpoint))
	assert.Equal(t, severity.Warning, report.DomainStatus[DomainConnectivity])
	assert.Contains(t, report.Recommendations, advice[CheckEndpointLatency])

	f.Config.Probes.SlowAfter = 0
	e, _ = newEngine(f.Config)
	report, err = e.Assess(context.Background(), Quick)
	require.NoError(t, err)
	assert.Empty(t, findingsOf(report, CheckEndpointLatency))
	assert.Equal(t, severity.OK, report.DomainStatus[DomainConnectivity])
}

func TestHealthScore(t *testing.T) {
	of := func(levels ...severity.Level) []severity.Finding {
		out := make([]severity.Finding, len(levels))
		for i, l := range levels {
			out[i] = severity.Finding{Severity: l}
		}
		return out
	}
	tests := []struct {
		name     string
		findings []severity.Finding
		score    float64
		grade    string
	}{
		{name: "clean", findings: of(severity.OK, severity.Info), score: 100, grade: "A"},
		{name: "one warning", findings: of(severity.Warning), score: 90, grade: "A"},
		{name: "critical", findings: of(severity.Critical, severity.Warning), score: 70, grade: "C"},
		{name: "error counts as critical", findings: of(severity.Error, severity.Error), score: 60, grade: "C"},
		{name: "poor", findings: of(severity.Critical, severity.Critical, severity.Warning, severity.Warning), score: 40, grade: "D"},
		{name: "floored", findings: of(severity.Critical, severity.Critical, severity.Critical, severity.Critical, severity.Critical, severity.Critical), score: 0, grade: "F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := healthScore(tt.findings)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.grade, grade(score))
		})
	}
}

func TestAssessDataIntegrity(t *testing.T) {
	f := testutil.NewProjectFixture(t).MustBuild()
	require.NoError(t, os.RemoveAll(f.Path("docs")))
	f.Config.LogDir = filepath.Join(f.Root, "var", "log")
	before := f.Tree()

	e, _ := newEngine(f.Config)
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	dirs := findingsOf(report, CheckRequiredDir)
	require.Len(t, dirs, 1)
	assert.Equal(t, severity.Critical, dirs[0].Severity)
	assert.Contains(t, dirs[0].Message, "docs/")

	logDir := findingsOf(report, CheckLogDir)
	require.Len(t, logDir, 1)
	assert.Equal(t, severity.Info, logDir[0].Severity)
	assert.DirExists(t, f.Config.LogDir)
	assert.FileExists(t, report.Path)

	// The log directory is the only thing an assessment creates.
	after := f.Tree()
	for rel := range after {
		if strings.HasPrefix(rel, "var/log/") {
			delete(after, rel)
		}
	}
	assert.Equal(t, before, after)
}

func TestAssessUnwritableLogDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	f := testutil.NewProjectFixture(t).MustBuild()
	require.NoError(t, os.Chmod(f.Config.LogDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(f.Config.LogDir, 0o755) })

	e, _ := newEngine(f.Config)
	report, err := e.Assess(context.Background(), Quick)
	require.NoError(t, err)

	logDir := findingsOf(report, CheckLogDir)
	require.Len(t, logDir, 1)
	assert.Equal(t, severity.Warning, logDir[0].Severity)
	assert.Empty(t, report.Path, "the report cannot be written either")
	assert.Empty(t, report.MetricsPath)
}

func TestAssessWithRepository(t *testing.T) {
	f := testutil.NewProjectFixture(t).WithGit().MustBuild()
	f.Write("src/new.js", "export {}\n")

	git := command.NewExecExecutor()
	exec := command.NewFakeExecutor()
	exec.RunFn = func(ctx context.Context, call command.Call) (string, error) {
		if call.Name == "git" {
			return git.Run(ctx, call.Dir, call.Name, call.Args...)
		}
		return "", nil
	}

	e, _ := newEngine(f.Config, WithExecutor(exec))
	report, err := e.Assess(context.Background(), Full)
	require.NoError(t, err)

	changes := findingsOf(report, CheckUncommitted)
	require.Len(t, changes, 1)
	assert.Equal(t, severity.Warning, changes[0].Severity)
	assert.Equal(t, "1 uncommitted changes", changes[0].Message)

	fsck := findingsOf(report, CheckRepository)
	require.Len(t, fsck, 1)
	assert.Equal(t, severity.OK, fsck[0].Severity)
	assert.Equal(t, severity.Warning, report.OverallStatus)
	assert.Contains(t, report.Recommendations, advice[CheckUncommitted])
}

func TestAssessCancelled(t *testing.T) {
	f := testutil.NewProjectFixture(t).MustBuild()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newEngine(f.Config)
	_, err := e.Assess(ctx, Quick)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.Assess(context.Background(), Mode("deep"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidMode)
}
