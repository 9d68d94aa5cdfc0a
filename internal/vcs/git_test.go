package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/lifeboat/internal/command"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

func scripted(responses map[string]string) *command.FakeExecutor {
	f := command.NewFakeExecutor()
	f.RunFn = func(_ context.Context, call command.Call) (string, error) {
		out, ok := responses[call.String()]
		if !ok {
			return "", apperrors.ErrCommandFailed
		}
		return out, nil
	}
	return f
}

func TestSnapshotWithFakeExecutor(t *testing.T) {
	f := scripted(map[string]string{
		"git rev-parse --is-inside-work-tree": "true\n",
		"git rev-parse HEAD":                  "0123456789abcdef\n",
		"git rev-parse --abbrev-ref HEAD":     "main\n",
		"git status --porcelain":              " M scripts/run.sh\n?? notes.txt\n",
		"git remote -v": "origin\tgit@example.com:team/app.git (fetch)\n" +
			"origin\tgit@example.com:team/app.git (push)\n",
	})
	c := New("/project", f)

	state, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", state.Revision)
	assert.Equal(t, "main", state.Branch)
	assert.False(t, state.Clean)
	assert.Equal(t, []string{" M scripts/run.sh", "?? notes.txt"}, state.Status)
	assert.Equal(t, []Remote{{Name: "origin", URL: "git@example.com:team/app.git"}}, state.Remotes)

	for _, call := range f.Calls {
		assert.Equal(t, "/project", call.Dir)
	}
}

func TestSnapshotNotRepository(t *testing.T) {
	c := New("/project", scripted(nil))
	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotRepository)
}

func TestSetRemote(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{name: "adds missing", existing: "", want: "git remote add origin https://example.com/a.git"},
		{name: "updates changed", existing: "origin\thttps://old/a.git (fetch)\n", want: "git remote set-url origin https://example.com/a.git"},
		{name: "keeps matching", existing: "origin\thttps://example.com/a.git (fetch)\n", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := command.NewFakeExecutor()
			f.RunFn = func(_ context.Context, call command.Call) (string, error) {
				if call.String() == "git remote -v" {
					return tt.existing, nil
				}
				return "", nil
			}
			c := New("/project", f)
			require.NoError(t, c.SetRemote(context.Background(), Remote{Name: "origin", URL: "https://example.com/a.git"}))

			cmds := f.Commands()
			if tt.want == "" {
				assert.Equal(t, []string{"git remote -v"}, cmds)
				return
			}
			assert.Equal(t, tt.want, cmds[len(cmds)-1])
		})
	}
}

func TestFsckFailure(t *testing.T) {
	c := New("/project", scripted(nil))
	err := c.Fsck(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrCommandFailed)
}

func requireGit(t *testing.T) {
	t.Helper()
	if !command.Available("git") {
		t.Skip("git not available")
	}
}

func initRepo(t *testing.T, dir string) *Client {
	t.Helper()
	ctx := context.Background()
	exec := command.NewExecExecutor()
	exec.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=lifeboat", "GIT_AUTHOR_EMAIL=lifeboat@example.com",
		"GIT_COMMITTER_NAME=lifeboat", "GIT_COMMITTER_EMAIL=lifeboat@example.com",
	)
	c := New(dir, exec)

	_, err := c.git(ctx, "init", "--quiet", "--initial-branch=main")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# app\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	_, err = c.git(ctx, "add", ".")
	require.NoError(t, err)
	_, err = c.git(ctx, "commit", "--quiet", "-m", "initial")
	require.NoError(t, err)
	_, err = c.git(ctx, "remote", "add", "origin", "https://example.com/team/app.git")
	require.NoError(t, err)
	return c
}

func TestBundleAndRestore(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	src := initRepo(t, t.TempDir())
	require.NoError(t, src.Fsck(ctx))

	state, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, state.Clean)
	assert.Equal(t, "main", state.Branch)

	bundle := filepath.Join(t.TempDir(), "repository.bundle")
	require.NoError(t, src.Bundle(ctx, bundle))
	require.NoError(t, src.VerifyBundle(ctx, bundle))

	// The destination already holds a restored file with local edits.
	dst := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "README.md"), []byte("# edited\n"), 0o644))

	restored := New(dst, nil)
	assert.False(t, restored.HasGitDir())
	require.NoError(t, restored.RestoreFromBundle(ctx, bundle, state.Branch))
	assert.True(t, restored.HasGitDir())

	head, err := restored.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Revision, head)

	data, err := os.ReadFile(filepath.Join(dst, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# edited\n", string(data), "existing files are kept")

	_, err = os.Stat(filepath.Join(dst, "main.go"))
	assert.NoError(t, err, "missing tracked files are checked out")

	require.NoError(t, restored.SetRemote(ctx, state.Remotes[0]))
	remotes, err := restored.Remotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Remotes, remotes)
}
