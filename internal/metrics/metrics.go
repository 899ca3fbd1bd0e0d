// Package metrics exports run and job counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adsposter/internal/poster"
)

const namespace = "adsposter"

// Recorder implements poster.Metrics on a private registry.
type Recorder struct {
	reg *prometheus.Registry

	admitted *prometheus.CounterVec
	rejected *prometheus.CounterVec
	finished *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
	running  prometheus.Gauge
}

var _ poster.Metrics = (*Recorder)(nil)

// New registers the collectors. Process and Go runtime collectors are included.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_admitted_total",
			Help:      "Runs admitted, by request source.",
		}, []string{"source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Run requests rejected because another run was active.",
		}, []string{"source"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Finished runs, by terminal state and whether a stop was requested.",
		}, []string{"state", "cancelled"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Post jobs handled, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently holding a worker.",
		}),
	}
	r.reg.MustRegister(
		r.admitted, r.rejected, r.finished, r.jobs, r.duration, r.running,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) RunAdmitted(source string) {
	r.admitted.WithLabelValues(label(source)).Inc()
	r.running.Inc()
}

func (r *Recorder) RunRejected(source string) {
	r.rejected.WithLabelValues(label(source)).Inc()
}

func (r *Recorder) RunFinished(state poster.State, cancelled bool, took time.Duration) {
	c := "false"
	if cancelled {
		c = "true"
	}
	r.finished.WithLabelValues(state.String(), c).Inc()
	r.duration.Observe(took.Seconds())
	r.running.Dec()
}

func (r *Recorder) JobFinished(outcome poster.JobOutcome) {
	r.jobs.WithLabelValues(string(outcome)).Inc()
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Registry exposes the underlying registry for extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func label(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
