package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"bookstore/internal/app/webhooks"
	"bookstore/internal/infrastructure/kafka"
)

const maxBodyBytes = 64 << 10

type StripeHandler struct {
	producer kafka.Producer
	topics   map[webhooks.Family]string
	secret   string
	logger   *zap.Logger
}

func NewStripeHandler(p kafka.Producer, topics map[webhooks.Family]string, secret string, l *zap.Logger) *StripeHandler {
	return &StripeHandler{producer: p, topics: topics, secret: secret, logger: l}
}

// HandleEvent verifies a Stripe webhook and queues it on its family topic.
func (h *StripeHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Stripe webhook body too large")
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("Failed to read Stripe webhook body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("Invalid Stripe webhook signature", zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	eventType := webhooks.EventType(event.Type)
	logger := h.logger.With(zap.String("job_id", event.ID), zap.String("event_type", string(eventType)))

	family, ok := eventType.Family()
	topic := h.topics[family]
	if !ok || topic == "" {
		logger.Info("Ignoring unhandled Stripe event type")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	var data json.RawMessage
	if event.Data != nil {
		data = event.Data.Raw
	}
	job := &webhooks.Job{ID: event.ID, Name: string(eventType), Data: data}
	payload, err := json.Marshal(job)
	if err != nil {
		logger.Error("Failed to marshal webhook job", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	orderID := webhooks.OrderID(data)
	if err := h.producer.Produce(r.Context(), topic, []byte(orderID), payload, map[string]string{"job-name": job.Name}); err != nil {
		logger.Error("Failed to enqueue webhook job", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "Failed to enqueue event", http.StatusInternalServerError)
		return
	}

	logger.Info("Stripe webhook queued", zap.String("order_id", orderID), zap.String("topic", topic))
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
