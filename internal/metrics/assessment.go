package metrics

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resource names for the resource_used_percent gauge
const (
	ResourceDisk   = "disk"
	ResourceMemory = "memory"
)

// AssessmentRecorder holds the gauges of one assessment.
type AssessmentRecorder struct {
	registry *prometheus.Registry

	last     prometheus.Gauge
	health   prometheus.Gauge
	domain   *prometheus.GaugeVec
	resource *prometheus.GaugeVec
	up       *prometheus.GaugeVec
	latency  *prometheus.GaugeVec
}

// NewAssessment creates an assessment recorder with its own registry.
func NewAssessment() *AssessmentRecorder {
	r := &AssessmentRecorder{
		registry: prometheus.NewRegistry(),
		last: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemAssessment,
			Name:      "last_timestamp_seconds",
			Help:      "Unix time the last assessment finished.",
		}),
		health: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemAssessment,
			Name:      "health_score",
			Help:      "Health score of the last assessment, 0 to 100.",
		}),
		domain:   labelled(subsystemAssessment, "domain_status", "Status per domain: 0 OK, 1 info, 2 warning, 3 error, 4 critical.", "domain"),
		resource: labelled(subsystemAssessment, "resource_used_percent", "Host resource usage seen by the last assessment.", "resource"),
		up:       labelled(subsystemAssessment, "endpoint_up", "1 when the endpoint answered below status 500.", "endpoint"),
		latency:  labelled(subsystemAssessment, "endpoint_latency_seconds", "Probe round trip of the endpoint.", "endpoint"),
	}
	r.registry.MustRegister(r.last, r.health, r.domain, r.resource, r.up, r.latency)
	return r
}

// Registry exposes the underlying registry.
func (r *AssessmentRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveHealth records the overall score and finish time.
func (r *AssessmentRecorder) ObserveHealth(score float64, at time.Time) {
	r.health.Set(score)
	r.last.Set(float64(at.Unix()))
}

// ObserveDomain records a domain status as its numeric level.
func (r *AssessmentRecorder) ObserveDomain(domain string, level int) {
	r.domain.WithLabelValues(domain).Set(float64(level))
}

// ObserveResource records a usage percentage.
func (r *AssessmentRecorder) ObserveResource(resource string, pct float64) {
	r.resource.WithLabelValues(resource).Set(pct)
}

// ObserveEndpoint records one probe. Latency is only set for reachable
// endpoints.
func (r *AssessmentRecorder) ObserveEndpoint(name string, reachable bool, latency time.Duration) {
	if !reachable {
		r.up.WithLabelValues(name).Set(0)
		return
	}
	r.up.WithLabelValues(name).Set(1)
	r.latency.WithLabelValues(name).Set(latency.Seconds())
}

// WriteTextfile writes every gauge to dir/lifeboat_assessment.prom.
func (r *AssessmentRecorder) WriteTextfile(dir string) (string, error) {
	return writeTextfile(filepath.Join(dir, AssessmentFileName), r.registry)
}
