// Package metrics exposes Prometheus collectors for the radar service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing,
// so components can be built without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	runDurationSeconds  prometheus.Histogram
	itemsTotal          *prometheus.CounterVec
	sourceFailuresTotal *prometheus.CounterVec
	rateLimitedTotal    *prometheus.CounterVec
	summariesTotal      *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
	lastRunTimestamp    prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_runs_total",
				Help: "Total number of scan runs, labeled by trigger and final status.",
			},
			[]string{"trigger", "status"},
		),
		runDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "radar_run_duration_seconds",
				Help:    "Histogram of scan run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_items_total",
				Help: "Total number of candidate items, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		sourceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_source_failures_total",
				Help: "Total number of failed source fetches, labeled by source and kind.",
			},
			[]string{"source", "kind"},
		),
		rateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_rate_limited_total",
				Help: "Total number of rate-limited source fetches.",
			},
			[]string{"source"},
		),
		summariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_summaries_total",
				Help: "Total number of summary requests, labeled by result.",
			},
			[]string{"result"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_last_run_timestamp_seconds",
				Help: "Unix time at which the last scan run finished.",
			},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(trigger, status string, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(trigger, status).Inc()
	m.runDurationSeconds.Observe(duration.Seconds())
	m.lastRunTimestamp.Set(float64(finishedAt.Unix()))
}

// ObserveItem counts one candidate with outcome inserted, duplicate or rejected.
func (m *Metrics) ObserveItem(source, outcome string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveSourceFailure(source, kind string) {
	if m == nil {
		return
	}
	m.sourceFailuresTotal.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) ObserveRateLimited(source string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(source).Inc()
}

// ObserveSummary counts summary requests with result cached, created or error.
func (m *Metrics) ObserveSummary(result string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
