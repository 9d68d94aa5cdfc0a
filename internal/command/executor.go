// Package command runs external programs (git, bash) behind an interface so
// callers can be tested without the binaries installed.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// Executor runs commands.
type Executor interface {
	// Run executes name with args in dir and returns its stdout.
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecExecutor is the default Executor, delegating to os/exec.
type ExecExecutor struct {
	// Env, when set, replaces the inherited environment.
	Env []string
}

// NewExecExecutor creates a new ExecExecutor
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// Run implements Executor.Run
func (e *ExecExecutor) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if e.Env != nil {
		cmd.Env = e.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), ctx.Err()
		}
		return stdout.String(), &apperrors.CommandError{
			Command: name,
			Args:    args,
			Output:  stderr.String(),
			Err:     fmt.Errorf("%w: %v", apperrors.ErrCommandFailed, err),
		}
	}
	return stdout.String(), nil
}

// Available reports whether name resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
