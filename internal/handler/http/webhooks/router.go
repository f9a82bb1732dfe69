package webhooks

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bookstore/internal/app/webhooks"
	"bookstore/internal/infrastructure/kafka"
)

func RegisterRoutes(r chi.Router, p kafka.Producer, topics map[webhooks.Family]string, secret string, l *zap.Logger) {
	handler := NewStripeHandler(p, topics, secret, l.With(zap.String("component", "StripeWebhookHandler")))

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/stripe", handler.HandleEvent)
	})
}
