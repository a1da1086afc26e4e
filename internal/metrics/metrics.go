package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regulus_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regulus_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	detectionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regulus_detection_runs_total",
			Help: "Detection runs by outcome (ok, invalid, not_found, cancelled, error).",
		},
		[]string{"outcome"},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regulus_detection_duration_seconds",
			Help:    "Wall time of one detection run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	pairsScreenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regulus_pairs_screened_total",
			Help: "Object pairs searched for a closest approach.",
		},
	)

	propagationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regulus_propagation_failures_total",
			Help: "Skipped samples by propagation failure reason.",
		},
		[]string{"reason"},
	)

	conjunctionsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regulus_conjunctions_recorded_total",
			Help: "New conjunction events stored, by risk tier.",
		},
		[]string{"tier"},
	)

	duplicatesSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regulus_conjunction_duplicates_total",
			Help: "Upserts that found an ACTIVE event for the same pair and run.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(detectionRunsTotal)
	prometheus.MustRegister(detectionDurationSeconds)
	prometheus.MustRegister(pairsScreenedTotal)
	prometheus.MustRegister(propagationFailuresTotal)
	prometheus.MustRegister(conjunctionsRecordedTotal)
	prometheus.MustRegister(duplicatesSuppressedTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Detection records detection-run metrics. The zero value is ready to use.
type Detection struct{}

// RunCompleted counts a finished run.
func (Detection) RunCompleted(outcome string, elapsed time.Duration, pairs int) {
	detectionRunsTotal.WithLabelValues(outcome).Inc()
	detectionDurationSeconds.Observe(elapsed.Seconds())
	pairsScreenedTotal.Add(float64(pairs))
}

// PropagationFailures counts n skipped samples for reason.
func (Detection) PropagationFailures(reason string, n int) {
	propagationFailuresTotal.WithLabelValues(reason).Add(float64(n))
}

// ConjunctionRecorded counts a newly stored event.
func (Detection) ConjunctionRecorded(tier string) {
	conjunctionsRecordedTotal.WithLabelValues(tier).Inc()
}

// DuplicateSuppressed counts an upsert that was a no-op.
func (Detection) DuplicateSuppressed() {
	duplicatesSuppressedTotal.Inc()
}

// CatalogSource is what the catalog gauges read.
type CatalogSource interface {
	Len() int
	AgeSeconds() float64
}

// CatalogCollectors returns gauges for catalog size and age, read on scrape.
func CatalogCollectors(src CatalogSource) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "regulus_catalog_objects",
				Help: "Objects with an element set in the loaded catalog.",
			},
			func() float64 { return float64(src.Len()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "regulus_catalog_age_seconds",
				Help: "Seconds since the loaded catalog was written, -1 when none is loaded.",
			},
			src.AgeSeconds,
		),
	}
}

// routes lists the exact paths that get their own label.
var routes = map[string]bool{
	"/healthz":                    true,
	"/readyz":                     true,
	"/metrics":                    true,
	"/api/v1/conjunctions":        true,
	"/api/v1/conjunctions/detect": true,
	"/api/v1/conjunctions/stats":  true,
}

const catalogPrefix = "/api/v1/catalog/"

// normalizeRoute maps a request path onto a bounded label set: known routes
// as-is, parameterized catalog lookups as one template, everything else as
// "other".
func normalizeRoute(path string) string {
	if routes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, catalogPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return catalogPrefix + "{object_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
