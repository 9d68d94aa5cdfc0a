package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/store"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.Local)

func place(t *testing.T, dir string, class store.Class, age time.Duration) string {
	t.Helper()
	created := now.Add(-age)
	name := store.FileName(class, created, false)
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, 2048), 0o600))
	require.NoError(t, os.Chtimes(p, created, created))
	return name
}

func newManager(dir string, keep int) *Manager {
	m := New(store.New(dir), config.RetentionConfig{
		Daily: 7, Weekly: 28, Snapshot: 2, Manual: 0, KeepMinimum: keep,
	})
	m.now = func() time.Time { return now }
	return m
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func TestPruneRemovesOnlyExpiredOfClass(t *testing.T) {
	dir := t.TempDir()
	fresh := place(t, dir, store.Daily, 2*24*time.Hour)
	old := place(t, dir, store.Daily, 8*24*time.Hour)
	older := place(t, dir, store.Daily, 20*24*time.Hour)
	weekly := place(t, dir, store.Weekly, 20*24*time.Hour)
	snapshot := place(t, dir, store.Snapshot, 20*24*time.Hour)

	result, err := newManager(dir, 1).PruneClass(store.Daily)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{old, older}, result.Removed)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, int64(4096), result.FreedBytes)
	assert.True(t, exists(dir, fresh))
	assert.False(t, exists(dir, old))
	assert.True(t, exists(dir, weekly), "other classes are untouched")
	assert.True(t, exists(dir, snapshot), "other classes are untouched")
}

func TestPruneIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	place(t, dir, store.Snapshot, time.Hour)
	place(t, dir, store.Snapshot, 3*24*time.Hour)
	place(t, dir, store.Snapshot, 5*24*time.Hour)

	m := newManager(dir, 1)
	first, err := m.PruneClass(store.Snapshot)
	require.NoError(t, err)
	assert.Len(t, first.Removed, 2)

	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	second, err := m.PruneClass(store.Snapshot)
	require.NoError(t, err)
	assert.Empty(t, second.Removed)

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestPruneZeroWindowIsUnbounded(t *testing.T) {
	dir := t.TempDir()
	a := place(t, dir, store.Manual, 400*24*time.Hour)
	b := place(t, dir, store.Manual, 900*24*time.Hour)

	result, err := newManager(dir, 0).PruneClass(store.Manual)
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 2, result.Kept)
	assert.True(t, exists(dir, a))
	assert.True(t, exists(dir, b))
}

func TestPruneKeepsMinimum(t *testing.T) {
	tests := []struct {
		name        string
		keep        int
		wantRemoved int
	}{
		{name: "keep none", keep: 0, wantRemoved: 3},
		{name: "keep newest", keep: 1, wantRemoved: 2},
		{name: "keep more than exist", keep: 5, wantRemoved: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			place(t, dir, store.Daily, 10*24*time.Hour)
			newest := place(t, dir, store.Daily, 9*24*time.Hour)
			place(t, dir, store.Daily, 11*24*time.Hour)

			result, err := newManager(dir, tt.keep).PruneClass(store.Daily)
			require.NoError(t, err)
			assert.Len(t, result.Removed, tt.wantRemoved)
			if tt.keep > 0 {
				assert.True(t, exists(dir, newest))
			}
		})
	}
}

func TestPruneRemovesStalePartials(t *testing.T) {
	dir := t.TempDir()
	stale := store.PartialName(store.FileName(store.Daily, now.Add(-3*time.Hour), false))
	recent := store.PartialName(store.FileName(store.Daily, now, false))
	otherClass := store.PartialName(store.FileName(store.Weekly, now.Add(-3*time.Hour), false))

	for name, age := range map[string]time.Duration{stale: 3 * time.Hour, recent: time.Minute, otherClass: 3 * time.Hour} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("partial"), 0o600))
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	result, err := newManager(dir, 1).PruneClass(store.Daily)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, result.PartialsRemoved)
	assert.False(t, exists(dir, stale))
	assert.True(t, exists(dir, recent))
	assert.True(t, exists(dir, otherClass))
}

func TestPruneMissingRoot(t *testing.T) {
	m := newManager(filepath.Join(t.TempDir(), "absent"), 1)
	result, err := m.PruneClass(store.Daily)
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
}
