// Package metrics records backup and assessment outcomes as Prometheus
// gauges and writes them in the node-exporter textfile format.
//
// Backup metrics, written to the backup root:
//
//   - lifeboat_backup_last_success_timestamp_seconds{class}
//   - lifeboat_backup_last_failure_timestamp_seconds{class}
//   - lifeboat_backup_last_size_bytes{class}
//   - lifeboat_backup_last_files{class}
//   - lifeboat_backup_last_duration_seconds{class}
//   - lifeboat_backup_last_pruned{class}
//   - lifeboat_archives_stored{class}
//   - lifeboat_archives_stored_bytes{class}
//   - lifeboat_archive_newest_timestamp_seconds{class}
//
// Assessment metrics, written to the log directory:
//
//   - lifeboat_assessment_last_timestamp_seconds
//   - lifeboat_assessment_health_score
//   - lifeboat_assessment_domain_status{domain}
//   - lifeboat_assessment_resource_used_percent{resource}
//   - lifeboat_assessment_endpoint_up{endpoint}
//   - lifeboat_assessment_endpoint_latency_seconds{endpoint}
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lcrostarosa/lifeboat/internal/store"
)

// Textfiles written by the backup and assessment recorders
const (
	FileName           = "lifeboat.prom"
	AssessmentFileName = "lifeboat_assessment.prom"
)

const (
	namespace           = "lifeboat"
	subsystemBackup     = "backup"
	subsystemAssessment = "assessment"
)

// BackupStats is the outcome of one successful backup.
type BackupStats struct {
	Class      store.Class
	Size       int64
	Files      int
	Duration   time.Duration
	Pruned     int
	FinishedAt time.Time
}

// Recorder holds the gauges of one invocation.
type Recorder struct {
	registry *prometheus.Registry

	lastSuccess *prometheus.GaugeVec
	lastFailure *prometheus.GaugeVec
	lastSize    *prometheus.GaugeVec
	lastFiles   *prometheus.GaugeVec
	lastDur     *prometheus.GaugeVec
	lastPruned  *prometheus.GaugeVec

	stored      *prometheus.GaugeVec
	storedBytes *prometheus.GaugeVec
	newest      *prometheus.GaugeVec
}

func gauge(subsystem, name, help string) *prometheus.GaugeVec {
	return labelled(subsystem, name, help, "class")
}

func labelled(subsystem, name, help, label string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, []string{label})
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry:    prometheus.NewRegistry(),
		lastSuccess: gauge(subsystemBackup, "last_success_timestamp_seconds", "Unix time of the last successful backup."),
		lastFailure: gauge(subsystemBackup, "last_failure_timestamp_seconds", "Unix time of the last failed backup."),
		lastSize:    gauge(subsystemBackup, "last_size_bytes", "Size of the last archive written."),
		lastFiles:   gauge(subsystemBackup, "last_files", "Files captured by the last backup."),
		lastDur:     gauge(subsystemBackup, "last_duration_seconds", "Wall time of the last backup."),
		lastPruned:  gauge(subsystemBackup, "last_pruned", "Archives removed by retention after the last backup."),
		stored:      gauge("", "archives_stored", "Archives currently in the backup root."),
		storedBytes: gauge("", "archives_stored_bytes", "Bytes of archives currently in the backup root."),
		newest:      gauge("", "archive_newest_timestamp_seconds", "Modification time of the newest archive."),
	}
	r.registry.MustRegister(
		r.lastSuccess, r.lastFailure, r.lastSize, r.lastFiles, r.lastDur, r.lastPruned,
		r.stored, r.storedBytes, r.newest,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveBackup records a successful backup.
func (r *Recorder) ObserveBackup(s BackupStats) {
	class := string(s.Class)
	r.lastSuccess.WithLabelValues(class).Set(float64(s.FinishedAt.Unix()))
	r.lastSize.WithLabelValues(class).Set(float64(s.Size))
	r.lastFiles.WithLabelValues(class).Set(float64(s.Files))
	r.lastDur.WithLabelValues(class).Set(s.Duration.Seconds())
	r.lastPruned.WithLabelValues(class).Set(float64(s.Pruned))
}

// ObserveFailure records a failed backup.
func (r *Recorder) ObserveFailure(class store.Class, at time.Time) {
	r.lastFailure.WithLabelValues(string(class)).Set(float64(at.Unix()))
}

// ObserveStore sets the inventory gauges from the archives in st.
func (r *Recorder) ObserveStore(st *store.Store) error {
	all, err := st.ListAll()
	if err != nil {
		return err
	}
	for _, c := range store.Classes() {
		r.stored.WithLabelValues(string(c)).Set(0)
		r.storedBytes.WithLabelValues(string(c)).Set(0)
	}
	for _, a := range all {
		class := string(a.Class)
		r.stored.WithLabelValues(class).Inc()
		r.storedBytes.WithLabelValues(class).Add(float64(a.Size))
	}
	// ListAll is newest first, so the first archive seen per class is its newest.
	seen := map[store.Class]bool{}
	for _, a := range all {
		if seen[a.Class] {
			continue
		}
		seen[a.Class] = true
		r.newest.WithLabelValues(string(a.Class)).Set(float64(a.ModTime.Unix()))
	}
	return nil
}

// WriteTextfile writes every gauge to dir/lifeboat.prom. The file is
// replaced atomically so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(dir string) (string, error) {
	return writeTextfile(filepath.Join(dir, FileName), r.registry)
}

func writeTextfile(path string, g prometheus.Gatherer) (string, error) {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return "", fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return path, nil
}
