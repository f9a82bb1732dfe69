package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/webhooks"
	http_orders "bookstore/internal/handler/http/orders"
	http_webhooks "bookstore/internal/handler/http/webhooks"
	"bookstore/internal/infrastructure/kafka"
	"bookstore/internal/metrics"
)

type Deps struct {
	Orders         orders.OrderService
	Status         http_orders.StatusOperations
	Producer       kafka.Producer
	WebhookTopics  map[webhooks.Family]string
	WebhookSecret  string
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger.With(zap.String("component", "HTTP"))))
	r.Use(metrics.HTTPMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	http_orders.RegisterRoutes(r, d.Orders, d.Status, d.Logger)
	http_webhooks.RegisterRoutes(r, d.Producer, d.WebhookTopics, d.WebhookSecret, d.Logger)

	return r
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			l.Info("HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
