// Package vcs wraps the git operations lifeboat needs to capture and restore
// the source-control state of a project.
package vcs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lcrostarosa/lifeboat/internal/command"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// Remote is a configured git remote.
type Remote struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// State is the source-control pointer of a work tree.
type State struct {
	Revision string   `json:"revision" yaml:"revision"`
	Branch   string   `json:"branch" yaml:"branch"`
	Clean    bool     `json:"clean" yaml:"clean"`
	Status   []string `json:"status,omitempty" yaml:"status,omitempty"`
	Remotes  []Remote `json:"remotes,omitempty" yaml:"remotes,omitempty"`
}

// Client runs git against one directory.
type Client struct {
	dir      string
	executor command.Executor
}

// New creates a client for dir. A nil executor uses os/exec.
func New(dir string, executor command.Executor) *Client {
	if executor == nil {
		executor = command.NewExecExecutor()
	}
	return &Client{dir: dir, executor: executor}
}

// Dir returns the work tree path.
func (c *Client) Dir() string {
	return c.dir
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	return c.executor.Run(ctx, c.dir, "git", args...)
}

// IsRepository reports whether dir is inside a git work tree.
func (c *Client) IsRepository(ctx context.Context) bool {
	out, err := c.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// HasGitDir reports whether dir itself carries a .git entry.
func (c *Client) HasGitDir() bool {
	_, err := os.Stat(filepath.Join(c.dir, ".git"))
	return err == nil
}

// Head returns the checked out commit.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Branch returns the current branch name, or "HEAD" when detached.
func (c *Client) Branch(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Status returns porcelain status lines; empty means clean.
func (c *Client) Status(ctx context.Context) ([]string, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return lines(out), nil
}

// Remotes returns the fetch URL of every remote.
func (c *Client) Remotes(ctx context.Context) ([]Remote, error) {
	out, err := c.git(ctx, "remote", "-v")
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	var remotes []Remote
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[2] != "(fetch)" {
			continue
		}
		remotes = append(remotes, Remote{Name: fields[0], URL: fields[1]})
	}
	return remotes, nil
}

// Snapshot collects revision, branch, status and remotes. It fails with
// ErrNotRepository when dir is not a work tree.
func (c *Client) Snapshot(ctx context.Context) (*State, error) {
	if !c.IsRepository(ctx) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotRepository, c.dir)
	}

	state := &State{}
	var err error
	if state.Revision, err = c.Head(ctx); err != nil {
		// A repository without commits has no HEAD yet.
		state.Revision = ""
	}
	if state.Branch, err = c.Branch(ctx); err != nil {
		state.Branch = ""
	}
	if state.Status, err = c.Status(ctx); err != nil {
		return nil, err
	}
	state.Clean = len(state.Status) == 0
	if state.Remotes, err = c.Remotes(ctx); err != nil {
		return nil, err
	}
	return state, nil
}

// SetRemote points name at url, adding the remote when absent.
func (c *Client) SetRemote(ctx context.Context, r Remote) error {
	existing, err := c.Remotes(ctx)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Name == r.Name {
			if e.URL == r.URL {
				return nil
			}
			_, err := c.git(ctx, "remote", "set-url", r.Name, r.URL)
			return err
		}
	}
	_, err = c.git(ctx, "remote", "add", r.Name, r.URL)
	return err
}

// RemoveRemote deletes a remote.
func (c *Client) RemoveRemote(ctx context.Context, name string) error {
	_, err := c.git(ctx, "remote", "remove", name)
	return err
}

// Bundle writes every ref to a bundle file at dst.
func (c *Client) Bundle(ctx context.Context, dst string) error {
	if _, err := c.git(ctx, "bundle", "create", dst, "HEAD", "--all"); err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	return nil
}

// VerifyBundle checks a bundle file is readable.
func (c *Client) VerifyBundle(ctx context.Context, bundle string) error {
	if _, err := c.executor.Run(ctx, filepath.Dir(bundle), "git", "bundle", "list-heads", bundle); err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	return nil
}

// RestoreFromBundle makes dir a work tree of the bundle's history without
// overwriting files already present in dir. Files the commit tracks but dir
// lacks are checked out.
func (c *Client) RestoreFromBundle(ctx context.Context, bundle, branch string) error {
	parent := filepath.Dir(c.dir)
	tmp, err := os.MkdirTemp(parent, ".lifeboat-clone-*")
	if err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	args := []string{"clone", "--no-checkout"}
	if branch != "" && branch != "HEAD" {
		args = append(args, "--branch", branch)
	}
	args = append(args, bundle, tmp)
	if _, err := c.executor.Run(ctx, parent, "git", args...); err != nil {
		return fmt.Errorf("failed to clone bundle: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(tmp, ".git"), filepath.Join(c.dir, ".git")); err != nil {
		return fmt.Errorf("failed to move repository into place: %w", err)
	}

	// Index from HEAD, then check out only what is missing on disk.
	if _, err := c.git(ctx, "reset", "--quiet", "--mixed"); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	out, err := c.git(ctx, "ls-files", "--deleted")
	if err != nil {
		return fmt.Errorf("failed to list missing files: %w", err)
	}
	missing := lines(out)
	if len(missing) == 0 {
		return nil
	}
	if _, err := c.git(ctx, append([]string{"checkout", "--"}, missing...)...); err != nil {
		return fmt.Errorf("failed to check out missing files: %w", err)
	}
	return nil
}

// Fsck checks repository consistency.
func (c *Client) Fsck(ctx context.Context) error {
	if _, err := c.git(ctx, "fsck", "--no-progress", "--no-dangling"); err != nil {
		return fmt.Errorf("repository consistency check failed: %w", err)
	}
	return nil
}

func lines(out string) []string {
	var result []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
