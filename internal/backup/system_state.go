package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lcrostarosa/lifeboat/internal/component"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/probe"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/vcs"
)

// State is the environment description stored as system_state/state.yaml.
type State struct {
	CapturedAt  time.Time         `yaml:"captured_at"`
	Hostname    string            `yaml:"hostname"`
	OS          string            `yaml:"os"`
	Arch        string            `yaml:"arch"`
	GoVersion   string            `yaml:"go_version"`
	ProjectRoot string            `yaml:"project_root"`
	VCS         *vcs.State        `yaml:"vcs,omitempty"`
	Bundle      bool              `yaml:"bundle"`
	Environment map[string]string `yaml:"environment"`
	Probes      []probe.Result    `yaml:"probes,omitempty"`
}

// ReadState parses a state.yaml file.
func ReadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: state: %v", apperrors.ErrArchiveCorrupt, err)
	}
	return &s, nil
}

// captureSystemState records host, repository and environment state. It is
// always present in an archive. Secrets in the environment are redacted.
func captureSystemState(ctx context.Context, e *Engine, dst string) (ComponentResult, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return ComponentResult{}, err
	}

	hostname, _ := os.Hostname()
	state := State{
		CapturedAt:  e.now(),
		Hostname:    hostname,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		ProjectRoot: e.cfg.ProjectRoot,
		Environment: apperrors.RedactEnv(os.Environ()),
	}
	if len(e.cfg.Probes.Endpoints) > 0 {
		state.Probes = e.prober.Probe(ctx, e.cfg.Probes.Endpoints)
	}

	result := ComponentResult{}
	git := vcs.New(e.cfg.ProjectRoot, e.executor)
	snap, err := git.Snapshot(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNotRepository):
		result.Severity = severity.Info
		result.Message = "project is not a git repository"
	case err != nil:
		result.Severity = severity.Warning
		result.Message = fmt.Sprintf("git state unavailable: %v", err)
	default:
		state.VCS = snap
		bundle := filepath.Join(dst, filepath.Base(component.BundleFile))
		if err := git.Bundle(ctx, bundle); err != nil {
			// A repository without commits cannot be bundled.
			_ = os.Remove(bundle)
			result.Severity = severity.Warning
			result.Message = fmt.Sprintf("repository bundle skipped: %v", err)
		} else {
			state.Bundle = true
			result.Files++
		}
	}

	data, err := yaml.Marshal(&state)
	if err != nil {
		return ComponentResult{}, fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dst, filepath.Base(component.StateFile)), data, 0o600); err != nil {
		return ComponentResult{}, err
	}
	result.Files++
	return result, nil
}
