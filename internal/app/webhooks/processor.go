package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/metrics"
)

var tracer = otel.Tracer("bookstore/internal/app/webhooks")

const (
	logUnknownEventType = "Unknown event type"
	logNoHandler        = "No handler found"
	logMissingOrderID   = "Missing order ID"
)

// Processor dispatches webhook jobs to the handler registered for their event type.
type Processor struct {
	handlers map[EventType]Handler
	orders   orders.OrderService
	tx       database.Transactor
	logger   *zap.Logger
}

func NewProcessor(handlers []Handler, o orders.OrderService, tx database.Transactor, l *zap.Logger) *Processor {
	if len(handlers) == 0 {
		l.Warn("No webhook handlers registered")
	}

	registry := make(map[EventType]Handler, len(handlers))
	for _, h := range handlers {
		eventType := h.EventType()
		if eventType == "" {
			l.Warn("Webhook handler declares no event type, skipping", zap.String("handler", fmt.Sprintf("%T", h)))
			continue
		}
		if prev, ok := registry[eventType]; ok {
			l.Warn("Duplicate webhook handler for event type, last registration wins",
				zap.String("event_type", string(eventType)),
				zap.String("previous", fmt.Sprintf("%T", prev)),
				zap.String("handler", fmt.Sprintf("%T", h)))
		}
		registry[eventType] = h
	}

	return &Processor{handlers: registry, orders: o, tx: tx, logger: l}
}

type jobMetadata struct {
	Metadata map[string]string `json:"metadata"`
}

// OrderID reads metadata.orderId from an event payload.
func OrderID(data json.RawMessage) string {
	var m jobMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Metadata["orderId"]
}

// ProcessJob runs the job's handler inside one transaction. Guard failures are
// reported in the result; only handler or transaction faults return an error.
func (p *Processor) ProcessJob(ctx context.Context, job *Job) (result Result, err error) {
	ctx, span := tracer.Start(ctx, "webhooks.ProcessJob", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("event.type", job.Name),
		attribute.Int("job.attempts", job.Attempts),
	))
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err != nil:
			outcome = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !result.Success:
			outcome = metrics.OutcomeFailure
		}
		elapsed := time.Since(start)
		if err != nil {
			metrics.ObserveWebhookJob(job.Name, outcome, elapsed)
		} else {
			database.AfterCommit(ctx, func() { metrics.ObserveWebhookJob(job.Name, outcome, elapsed) })
		}
		span.End()
	}()

	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("event_type", job.Name))

	eventType := EventType(job.Name)
	if !eventType.IsKnown() {
		logger.Warn("Unknown webhook event type")
		return failed(logUnknownEventType), nil
	}
	handler, ok := p.handlers[eventType]
	if !ok {
		logger.Warn("No handler registered for event type")
		return failed(logNoHandler), nil
	}

	orderID := OrderID(job.Data)
	if orderID == "" {
		logger.Warn("Webhook event carries no order id")
		return failed(logMissingOrderID), nil
	}
	logger = logger.With(zap.String("order_id", orderID))
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := p.orders.GetOrder(ctx, orderID)
	if err != nil {
		logger.Error("Failed to load order for webhook job", zap.Error(err))
		return Result{}, err
	}
	if order == nil {
		logger.Warn("Order for webhook job not found")
		return failed(fmt.Sprintf("Order %s not found", orderID)), nil
	}

	err = p.tx.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := p.orders.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if locked == nil {
			result = failed(fmt.Sprintf("Order %s not found", orderID))
			return nil
		}
		result, err = handler.Handle(ctx, job.Data, locked)
		return err
	})
	if err != nil {
		logger.Error("Webhook job failed", zap.Error(err))
		return Result{}, err
	}

	if result.Log != nil {
		job.Log(*result.Log)
	}
	logger.Info("Webhook job processed", zap.Bool("success", result.Success))
	return result, nil
}

func failed(log string) Result {
	return Result{Success: false, Log: &log}
}
