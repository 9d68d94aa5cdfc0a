package testutil

import (
	"bytes"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lcrostarosa/lifeboat/internal/config"
)

// ProjectFixture is a project tree on disk with a matching configuration.
type ProjectFixture struct {
	// Root is the project root
	Root string
	// Config points at Root with a private backup root and no network probes
	Config *config.Config

	t *testing.T
}

type fixtureFile struct {
	content []byte
	mode    os.FileMode
}

// ProjectFixtureBuilder constructs project fixtures
type ProjectFixtureBuilder struct {
	t         *testing.T
	files     map[string]fixtureFile
	databases []string
	git       bool
	key       string
}

// DefaultProjectFiles is the tree a fixture starts with.
var DefaultProjectFiles = map[string]string{
	".env":                     "LINEAR_API_KEY=lin_test\nGITHUB_TOKEN=ghp_test\n",
	"package.json":             "{\"name\":\"fixture\"}\n",
	".eslintrc.json":           "{}\n",
	"jest.config.js":           "module.exports = {}\n",
	".prettierrc":              "{}\n",
	"docs/README.md":           "# Fixture\n",
	".github/workflows/ci.yml": "on: push\n",
	"tests/app.test.js":        "test('ok', () => {})\n",
	"logs/app.log":             "started\n",
	"src/index.js":             "console.log('hi')\n",
}

// DefaultScripts are the critical scripts, created executable.
var DefaultScripts = []string{
	"scripts/linear-sync.sh",
	"scripts/run-checks.sh",
	"scripts/install-aliases.sh",
}

// NewProjectFixture starts building a project fixture
func NewProjectFixture(t *testing.T) *ProjectFixtureBuilder {
	b := &ProjectFixtureBuilder{t: t, files: make(map[string]fixtureFile)}
	for name, content := range DefaultProjectFiles {
		b.files[name] = fixtureFile{content: []byte(content), mode: 0o644}
	}
	for _, name := range DefaultScripts {
		b.files[name] = fixtureFile{content: []byte("#!/bin/sh\nexit 0\n"), mode: 0o755}
	}
	return b
}

// WithFile adds or replaces a regular file
func (b *ProjectFixtureBuilder) WithFile(name, content string) *ProjectFixtureBuilder {
	b.files[name] = fixtureFile{content: []byte(content), mode: 0o644}
	return b
}

// WithExecutable adds or replaces an executable file
func (b *ProjectFixtureBuilder) WithExecutable(name, content string) *ProjectFixtureBuilder {
	b.files[name] = fixtureFile{content: []byte(content), mode: 0o755}
	return b
}

// Without drops a file from the tree
func (b *ProjectFixtureBuilder) Without(name string) *ProjectFixtureBuilder {
	delete(b.files, name)
	return b
}

// WithSQLite adds a small SQLite database at name
func (b *ProjectFixtureBuilder) WithSQLite(name string) *ProjectFixtureBuilder {
	b.databases = append(b.databases, name)
	return b
}

// WithGit initialises a git repository with one commit. Tests are skipped
// when git is not installed.
func (b *ProjectFixtureBuilder) WithGit() *ProjectFixtureBuilder {
	b.git = true
	return b
}

// WithEncryptionKey sets the passphrase in the fixture configuration
func (b *ProjectFixtureBuilder) WithEncryptionKey(key string) *ProjectFixtureBuilder {
	b.key = key
	return b
}

// Build creates the project on disk
func (b *ProjectFixtureBuilder) Build() (*ProjectFixture, error) {
	root := b.t.TempDir()
	for name, f := range b.files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(p, f.content, f.mode); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := os.Chmod(p, f.mode); err != nil {
			return nil, err
		}
	}
	for _, name := range b.databases {
		if err := createSQLite(filepath.Join(root, filepath.FromSlash(name))); err != nil {
			return nil, fmt.Errorf("failed to create database %s: %w", name, err)
		}
	}
	if b.git {
		if _, err := exec.LookPath("git"); err != nil {
			b.t.Skip("git not available")
		}
		if err := initGit(root); err != nil {
			return nil, err
		}
	}

	cfg := config.Default(root)
	cfg.BackupRoot = filepath.Join(b.t.TempDir(), "backups")
	cfg.LogDir = filepath.Join(root, "logs")
	cfg.Probes.Endpoints = nil
	cfg.Checks.DependencyValidator = ""
	cfg.Encryption.Key = b.key
	cfg.LockTimeout = 0

	return &ProjectFixture{Root: root, Config: cfg, t: b.t}, nil
}

// MustBuild creates the fixture or fails the test
func (b *ProjectFixtureBuilder) MustBuild() *ProjectFixture {
	f, err := b.Build()
	if err != nil {
		b.t.Fatalf("Failed to build project fixture: %v", err)
	}
	return f
}

// Path returns the absolute path of a project-relative name.
func (f *ProjectFixture) Path(name string) string {
	return filepath.Join(f.Root, filepath.FromSlash(name))
}

// Read returns a project file's content, failing the test on error.
func (f *ProjectFixture) Read(name string) string {
	f.t.Helper()
	data, err := os.ReadFile(f.Path(name))
	if err != nil {
		f.t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(data)
}

// Write replaces a project file, failing the test on error.
func (f *ProjectFixture) Write(name, content string) {
	f.t.Helper()
	p := f.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		f.t.Fatal(err)
	}
}

// Remove deletes a project file or directory, failing the test on error.
func (f *ProjectFixture) Remove(name string) {
	f.t.Helper()
	if err := os.RemoveAll(f.Path(name)); err != nil {
		f.t.Fatal(err)
	}
}

// Tree maps every regular file outside .git to its SHA256.
func (f *ProjectFixture) Tree() map[string]string {
	f.t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(f.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(f.Root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = HashHex(data)
		return nil
	})
	if err != nil {
		f.t.Fatalf("Failed to walk project: %v", err)
	}
	return tree
}

// Git runs git in the project root, failing the test on error.
func (f *ProjectFixture) Git(args ...string) string {
	f.t.Helper()
	out, err := runGit(f.Root, args...)
	if err != nil {
		f.t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return out
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=fixture", "GIT_AUTHOR_EMAIL=fixture@example.com",
		"GIT_COMMITTER_NAME=fixture", "GIT_COMMITTER_EMAIL=fixture@example.com",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func initGit(root string) error {
	steps := [][]string{
		{"init", "--quiet"},
		{"symbolic-ref", "HEAD", "refs/heads/main"},
		{"add", "--all"},
		{"commit", "--quiet", "-m", "fixture"},
	}
	for _, args := range steps {
		if out, err := runGit(root, args...); err != nil {
			return fmt.Errorf("git %v: %w: %s", args, err, out)
		}
	}
	return nil
}

func createSQLite(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return err
	}
	defer db.Close()
	stmts := []string{
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		"INSERT INTO items (name) VALUES ('alpha'), ('beta'), ('gamma')",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// CountRows returns the row count of table in the SQLite database at path.
func CountRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
