package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpawatch/mpawatch/internal/ingestion"
)

const namespace = "mpawatch"

// Collector exposes Prometheus metrics for inbound HTTP requests and for
// upstream fetch attempts. It satisfies ingestion.FetchObserver.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	failedRanges  prometheus.Counter
	rateLimitWait prometheus.Histogram
	analysesTotal *prometheus.CounterVec
}

var _ ingestion.FetchObserver = (*Collector)(nil)

// New constructs a collector on its own registry.
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gfw",
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempts by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gfw",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of individual upstream fetch attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		failedRanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gfw",
			Name:      "failed_ranges_total",
			Help:      "Yearly sub-ranges that failed after all retries.",
		}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for an outbound rate limiter slot.",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed MPA analyses by result.",
		}, []string{"result"}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.fetchAttempts,
		c.fetchDuration,
		c.failedRanges,
		c.rateLimitWait,
		c.analysesTotal,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one upstream fetch attempt.
func (c *Collector) ObserveAttempt(outcome string, d time.Duration) {
	c.fetchAttempts.WithLabelValues(outcome).Inc()
	c.fetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRateLimitWait records time spent blocked on the outbound limiter.
func (c *Collector) ObserveRateLimitWait(d time.Duration) {
	c.rateLimitWait.Observe(d.Seconds())
}

// ObserveFailedRange counts a sub-range that exhausted its retries.
func (c *Collector) ObserveFailedRange() {
	c.failedRanges.Inc()
}

// ObserveAnalysis counts a finished analysis by result
// (success, partial, no_activity, error).
func (c *Collector) ObserveAnalysis(result string) {
	c.analysesTotal.WithLabelValues(result).Inc()
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
// pattern is used as the path label so that ID-bearing paths do not explode
// label cardinality.
func (c *Collector) InstrumentHandler(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)

		c.requestTotal.WithLabelValues(r.Method, pattern, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, pattern, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
