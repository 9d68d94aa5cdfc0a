package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/lifeboat/internal/store"
)

func TestObserveBackup(t *testing.T) {
	r := New()
	finished := time.Unix(1_760_000_000, 0)
	r.ObserveBackup(BackupStats{
		Class:      store.Daily,
		Size:       4096,
		Files:      12,
		Duration:   1500 * time.Millisecond,
		Pruned:     2,
		FinishedAt: finished,
	})
	r.ObserveFailure(store.Weekly, finished)

	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("daily")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(r.lastSize.WithLabelValues("daily")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.lastFiles.WithLabelValues("daily")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.lastDur.WithLabelValues("daily")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.lastPruned.WithLabelValues("daily")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastFailure.WithLabelValues("weekly")))
}

func TestObserveStoreAndWrite(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"daily_backup_20260101_010000.tar.gz",
		"daily_backup_20260102_010000.tar.gz",
		"manual_backup_20260102_010000.tar.gz.enc",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, 100), 0o600))
	}

	r := New()
	require.NoError(t, r.ObserveStore(store.New(dir)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stored.WithLabelValues("daily")))
	assert.Equal(t, 200.0, testutil.ToFloat64(r.storedBytes.WithLabelValues("daily")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stored.WithLabelValues("manual")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.stored.WithLabelValues("weekly")))

	path, err := r.WriteTextfile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lifeboat_archives_stored{class="daily"} 2`)
	assert.Contains(t, string(data), "# TYPE lifeboat_archive_newest_timestamp_seconds gauge")
}

func TestAssessmentRecorder(t *testing.T) {
	r := NewAssessment()
	finished := time.Unix(1_760_000_000, 0)
	r.ObserveHealth(70, finished)
	r.ObserveDomain("system", 2)
	r.ObserveResource(ResourceDisk, 85.5)
	r.ObserveEndpoint("github", true, 250*time.Millisecond)
	r.ObserveEndpoint("linear", false, time.Second)

	assert.Equal(t, 70.0, testutil.ToFloat64(r.health))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.last))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.domain.WithLabelValues("system")))
	assert.Equal(t, 85.5, testutil.ToFloat64(r.resource.WithLabelValues("disk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.up.WithLabelValues("github")))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.latency.WithLabelValues("github")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.up.WithLabelValues("linear")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency), "unreachable endpoints get no latency")

	dir := t.TempDir()
	path, err := r.WriteTextfile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AssessmentFileName), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lifeboat_assessment_health_score 70")
	assert.Contains(t, string(data), `lifeboat_assessment_endpoint_up{endpoint="linear"} 0`)
	assert.NotContains(t, string(data), "lifeboat_backup_")
}
