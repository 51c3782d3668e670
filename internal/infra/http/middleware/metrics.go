package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_job_runs_total",
			Help: "Pipeline job invocations by job and result",
		},
		[]string{"job", "result"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_job_duration_seconds",
			Help:    "Duration of pipeline job invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_messages_total",
			Help: "Queued messages handled by the delivery worker, by outcome",
		},
		[]string{"outcome"},
	)

	pendingNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_pending_notifications_total",
			Help: "Pending notifications resolved, by outcome",
		},
		[]string{"outcome"},
	)

	orphansRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_orphans_registered_total",
			Help: "Leads found without any email trace and registered",
		},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern keeps lead ids out of the label set.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func RecordJobRun(job string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobRuns.WithLabelValues(job, result).Inc()
	jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func RecordMessages(outcome string, n int) {
	if n > 0 {
		messagesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

func RecordPendingNotifications(outcome string, n int) {
	if n > 0 {
		pendingNotificationsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

func RecordOrphansRegistered(n int) {
	if n > 0 {
		orphansRegistered.Add(float64(n))
	}
}
