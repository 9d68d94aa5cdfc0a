package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lcrostarosa/lifeboat/internal/archive"
	"github.com/lcrostarosa/lifeboat/internal/component"
	"github.com/lcrostarosa/lifeboat/internal/fsutil"
	"github.com/lcrostarosa/lifeboat/internal/severity"
)

// captureFunc stages one component into dst.
type captureFunc func(ctx context.Context, e *Engine, dst string) (ComponentResult, error)

type capturer struct {
	name    string
	capture captureFunc
}

// components returns the capture pipeline in archive order.
func (e *Engine) components() []capturer {
	return []capturer{
		{component.Configurations, copySources(component.Configurations)},
		{component.Scripts, captureScripts},
		{component.IntegrationConfig, copySources(component.IntegrationConfig)},
		{component.Documentation, copySources(component.Documentation)},
		{component.SystemState, captureSystemState},
		{component.LogsMetrics, copySources(component.LogsMetrics)},
		{component.Databases, captureDatabases},
		{component.Tests, copySources(component.Tests)},
	}
}

// excluded lists directory names never walked into while expanding sources.
func (e *Engine) excluded() []string {
	skip := []string{".git", "node_modules"}
	if inside(e.cfg.ProjectRoot, e.cfg.BackupRoot) {
		skip = append(skip, filepath.Base(e.cfg.BackupRoot))
	}
	return skip
}

func inside(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Engine) sources(name string) ([]string, error) {
	patterns := component.Sources(name, e.cfg.Components)
	files, err := fsutil.Expand(e.cfg.ProjectRoot, patterns, e.excluded()...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s sources: %w", name, err)
	}
	return files, nil
}

func stage(root string, files []string, dst string) error {
	for _, rel := range files {
		src := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, filepath.Join(dst, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}
	return nil
}

// copySources stages the component's matching project files unchanged.
func copySources(name string) captureFunc {
	return func(_ context.Context, e *Engine, dst string) (ComponentResult, error) {
		files, err := e.sources(name)
		if err != nil {
			return ComponentResult{}, err
		}
		if len(files) == 0 {
			return ComponentResult{Skipped: true, Message: "no matching files"}, nil
		}
		if err := stage(e.cfg.ProjectRoot, files, dst); err != nil {
			return ComponentResult{}, err
		}
		return ComponentResult{Files: len(files)}, nil
	}
}

// captureScripts stores the scripts as a nested tarball so their modes
// survive tools that unpack the outer archive without permissions.
func captureScripts(_ context.Context, e *Engine, dst string) (ComponentResult, error) {
	files, err := e.sources(component.Scripts)
	if err != nil {
		return ComponentResult{}, err
	}
	if len(files) == 0 {
		return ComponentResult{Skipped: true, Message: "no scripts found"}, nil
	}

	tmp, err := os.MkdirTemp("", "lifeboat-scripts-*")
	if err != nil {
		return ComponentResult{}, err
	}
	defer os.RemoveAll(tmp)

	if err := stage(e.cfg.ProjectRoot, files, tmp); err != nil {
		return ComponentResult{}, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return ComponentResult{}, err
	}
	out := filepath.Join(dst, filepath.Base(component.ScriptsArchive))
	if err := archive.Create(out, tmp); err != nil {
		return ComponentResult{}, err
	}

	result := ComponentResult{Files: len(files)}
	var notExec []string
	for _, rel := range files {
		if strings.HasSuffix(rel, ".sh") && !fsutil.IsExecutable(filepath.Join(tmp, filepath.FromSlash(rel))) {
			notExec = append(notExec, rel)
		}
	}
	if len(notExec) > 0 {
		result.Severity = severity.Info
		result.Message = "not executable: " + strings.Join(notExec, ", ")
	}
	return result, nil
}
