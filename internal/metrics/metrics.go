package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

var (
	webhookJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_webhook_jobs_total",
			Help: "Total number of processed webhook jobs by outcome",
		},
		[]string{"event_type", "outcome"},
	)

	webhookJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orders_webhook_job_duration_seconds",
			Help:    "Duration of webhook job processing",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"event_type"},
	)

	statusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_status_transitions_total",
			Help: "Total number of persisted order status transitions",
		},
		[]string{"from", "to"},
	)

	notificationsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_notifications_enqueued_total",
			Help: "Total number of notification jobs enqueued by template",
		},
		[]string{"template"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orders_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)
)

func ObserveWebhookJob(eventType, outcome string, duration time.Duration) {
	webhookJobsTotal.WithLabelValues(eventType, outcome).Inc()
	webhookJobDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func RecordStatusTransition(from, to string) {
	statusTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordNotification(template string) {
	notificationsEnqueuedTotal.WithLabelValues(template).Inc()
}

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

// HTTPMiddleware records request counts and latencies labelled by chi route pattern.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := UnmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
