package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	elevationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_transitions_total",
			Help: "Elevation grant lifecycle transitions by kind.",
		},
		[]string{"kind"},
	)

	sweeperRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "elevation_sweeper_runs_total",
		Help: "Expiry sweeps executed.",
	})

	sweeperCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "elevation_sweeper_completed_total",
		Help: "Grants moved to Completed by the expiry sweeper.",
	})

	sweeperLostRaces = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "elevation_sweeper_lost_races_total",
		Help: "Sweeper transitions skipped because a concurrent action won.",
	})

	resolverLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_resolver_lookups_total",
			Help: "Effective identity resolutions by outcome.",
		},
		[]string{"identity"},
	)

	scheduleAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_adjustments_recorded_total",
			Help: "Schedule adjustments newly recorded, by action.",
		},
		[]string{"action"},
	)

	initOnce sync.Once
)

// Init registers the collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			elevationTransitions, sweeperRuns, sweeperCompleted, sweeperLostRaces,
			resolverLookups, scheduleAdjustments,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifiers so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) >= 2 && parts[0] == "elevations" && isGrantID(parts[1]) {
		parts[1] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

func isGrantID(s string) bool {
	switch s {
	case "", "stats", "events", "eligible-delegates":
		return false
	}
	return true
}

// RecordTransition counts an elevation lifecycle transition.
func RecordTransition(kind string) {
	elevationTransitions.WithLabelValues(kind).Inc()
}

// RecordSweep counts one sweep with its outcome.
func RecordSweep(completed, lostRaces int) {
	sweeperRuns.Inc()
	sweeperCompleted.Add(float64(completed))
	sweeperLostRaces.Add(float64(lostRaces))
}

// RecordResolve counts a resolver lookup.
func RecordResolve(temporary bool) {
	if temporary {
		resolverLookups.WithLabelValues("temporary").Inc()
		return
	}
	resolverLookups.WithLabelValues("permanent").Inc()
}

// RecordAdjustments counts newly recorded schedule adjustments.
func RecordAdjustments(action string, n int) {
	if n <= 0 {
		return
	}
	scheduleAdjustments.WithLabelValues(action).Add(float64(n))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps Server-Sent Events working behind the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
