package logging

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "backup_20260304_050607.log", FileName("backup", ts))
}

func TestInitWithFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "assess_test.log")

	require.NoError(t, Init(Config{Level: "warn", FilePath: path}))
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(DefaultConfig())
	})

	// Below the console level, but the audit file records everything.
	Debug("probe detail", String("endpoint", "https://example.com"))
	Info("backup created", Int("files", 3))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "probe detail")
	assert.Contains(t, string(data), `"files":3`)
}

func TestSyncClosesFileAndKeepsLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover_test.log")
	require.NoError(t, Init(Config{Level: "info", FilePath: path}))
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	Info("stage restored", String("stage", "configuration"))
	require.NoError(t, Sync())

	Info("after close", String("stage", "scripts"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage restored")
	assert.NotContains(t, string(data), "after close")
}

func TestSyncWithPipedStderr(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stderr := os.Stderr
	os.Stderr = w
	t.Cleanup(func() {
		os.Stderr = stderr
		_ = Init(DefaultConfig())
		w.Close()
		r.Close()
	})
	go func() { _, _ = io.Copy(io.Discard, r) }()

	require.NoError(t, Init(DefaultConfig()))
	Warn("archive pruned")
	assert.NoError(t, Sync())
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "loud"}))
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	assert.True(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, L().Core().Enabled(zapcore.DebugLevel))
}
