package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestSeed(t *testing.T) {
	seed := GetTestSeed(t)
	assert.NotZero(t, seed, "seed should not be zero")
}

func TestRandomBytesSeeded(t *testing.T) {
	a := RandomBytes(32, WithSeed(42))
	b := RandomBytes(32, WithSeed(42))
	assert.Equal(t, a, b, "same seed should produce same bytes")
	assert.Len(t, a, 32)
}

func TestHashHex(t *testing.T) {
	assert.Len(t, HashHex([]byte("test data")), 64, "SHA256 hex should be 64 chars")
}

func TestProjectFixture(t *testing.T) {
	f := NewProjectFixture(t).
		WithFile("extra.txt", "x").
		Without("src/index.js").
		WithSQLite("data/app.db").
		MustBuild()

	assert.Equal(t, "x", f.Read("extra.txt"))
	assert.NoFileExists(t, f.Path("src/index.js"))

	info, err := os.Stat(f.Path("scripts/run-checks.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o111, "critical scripts should be executable")

	assert.Equal(t, 3, CountRows(t, f.Path("data/app.db"), "items"))

	tree := f.Tree()
	assert.Contains(t, tree, ".env")
	assert.Equal(t, HashHex([]byte("x")), tree["extra.txt"])

	assert.Equal(t, f.Root, f.Config.ProjectRoot)
	assert.Empty(t, f.Config.Probes.Endpoints)
}
