// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vgrab"

// Metrics holds all application metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics
	JobsSubmitted    prometheus.Counter
	JobsFinished     *prometheus.CounterVec
	JobsInProgress   prometheus.Gauge
	JobDownloadBytes prometheus.Counter
	JobDuration      prometheus.Histogram
	ProgressEvents   prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Event stream metrics
	EventClients prometheus.Gauge
}

// New creates all application metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total number of jobs accepted by the service",
		}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of jobs that reached a terminal state",
		}, []string{"state", "reason"}),
		JobsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_progress",
			Help:      "Number of jobs currently running",
		}),
		JobDownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded by succeeded jobs",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Histogram of job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		ProgressEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "progress_events_total",
			Help:      "Total number of progress notifications delivered",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
		}, []string{"method", "path"}),

		EventClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "clients",
			Help:      "Number of connected event stream clients",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordJobSubmitted counts an accepted job.
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmitted.Inc()
	m.JobsInProgress.Inc()
}

// RecordProgress counts one delivered progress notification.
func (m *Metrics) RecordProgress() {
	m.ProgressEvents.Inc()
}

// RecordJobSucceeded records a completed job.
func (m *Metrics) RecordJobSucceeded(duration time.Duration, bytes int64) {
	m.JobsFinished.WithLabelValues("succeeded", "").Inc()
	m.JobsInProgress.Dec()
	m.JobDuration.Observe(duration.Seconds())
	if bytes > 0 {
		m.JobDownloadBytes.Add(float64(bytes))
	}
}

// RecordJobFailed records a failed job; reason is "cancelled" or "error".
func (m *Metrics) RecordJobFailed(duration time.Duration, reason string) {
	m.JobsFinished.WithLabelValues("failed", reason).Inc()
	m.JobsInProgress.Dec()
	m.JobDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if size > 0 {
		m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
	}
}

// SetEventClients sets the number of connected event stream clients.
func (m *Metrics) SetEventClients(count int) {
	m.EventClients.Set(float64(count))
}
