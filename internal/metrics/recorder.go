// Package metrics exposes Prometheus metrics for validation runs, pipeline stages, the
// report cache and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinical-fact-validator/internal/domain"
)

const namespace = "clinval"

// Recorder owns a private registry so that tests and multiple servers in one process
// never collide on metric registration.
type Recorder struct {
	registry *prometheus.Registry

	validationsTotal *prometheus.CounterVec
	overallScore     prometheus.Histogram
	issuesTotal      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime and process collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		validationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "runs_total",
				Help:      "Total number of validation runs by outcome",
			},
			[]string{"outcome"},
		),
		overallScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "overall_score",
				Help:      "Distribution of overall validation scores",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		issuesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "issues_total",
				Help:      "Total number of validation issues by category and severity",
			},
			[]string{"category", "severity"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Validation stage duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "failures_total",
				Help:      "Total number of validation stages that panicked",
			},
			[]string{"stage"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Report cache lookups by result",
			},
			[]string{"result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "handler", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "handler"},
		),
	}
}

// ObserveStage records one stage execution.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, failed bool) {
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveReport records the outcome of a validation run.
func (r *Recorder) ObserveReport(report *domain.ValidationReport) {
	r.validationsTotal.WithLabelValues(Outcome(report)).Inc()
	r.overallScore.Observe(report.OverallScore)
	for _, issue := range report.Issues {
		r.issuesTotal.WithLabelValues(string(issue.Category), string(issue.Severity)).Inc()
	}
}

// ObserveCacheLookup records a cache hit, miss or error.
func (r *Recorder) ObserveCacheLookup(result string) {
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records one HTTP request.
func (r *Recorder) ObserveHTTP(method, handler string, status int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, handler, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, handler).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Outcome labels a report as safe, review or unsafe.
func Outcome(report *domain.ValidationReport) string {
	switch {
	case report.SafeForUse && !report.RequiresReview:
		return "safe"
	case report.CriticalCount() > 0:
		return "unsafe"
	default:
		return "review"
	}
}
