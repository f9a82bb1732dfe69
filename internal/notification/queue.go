package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bookstore/internal/infrastructure/database"
	"bookstore/internal/metrics"
)

// MailQueue is the queue consumed by the mail workers.
const MailQueue = "mail"

// Queue is a durable, at-least-once job queue.
type Queue interface {
	Enqueue(ctx context.Context, queueName, jobName string, payload any) error
}

type Template string

const (
	TemplateOrderComplete    Template = "orderComplete"
	TemplateOrderExpired     Template = "orderExpired"
	TemplateOrderCanceled    Template = "orderCanceled"
	TemplateOrderShipped     Template = "orderShipped"
	TemplateOrderDelivered   Template = "orderDelivered"
	TemplatePaymentSucceeded Template = "paymentSucceeded"
	TemplatePaymentFailed    Template = "paymentFailed"
	TemplateRefundCreated    Template = "refundCreated"
	TemplateRefundUpdated    Template = "refundUpdated"
	TemplateRefundFailed     Template = "refundFailed"
	TemplatePasswordReset    Template = "passwordReset"
)

type OrderMailPayload struct {
	OrderID  string `json:"orderId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	RefundID string `json:"refundId,omitempty"`
}

type AuthMailPayload struct {
	Email             string `json:"email"`
	Username          string `json:"username"`
	PasswordResetLink string `json:"passwordResetLink"`
}

// Mailer enqueues templated mail jobs on the mail queue.
type Mailer struct {
	queue  Queue
	logger *zap.Logger
}

func NewMailer(q Queue, l *zap.Logger) *Mailer {
	return &Mailer{queue: q, logger: l}
}

func (m *Mailer) AddOrderMailJob(ctx context.Context, template Template, payload OrderMailPayload) error {
	if payload.Email == "" {
		m.logger.Info("Order has no contact email, skipping mail",
			zap.String("order_id", payload.OrderID),
			zap.String("template", string(template)))
		return nil
	}
	if err := m.queue.Enqueue(ctx, MailQueue, string(template), payload); err != nil {
		return fmt.Errorf("failed to enqueue %s mail for order %s: %w", template, payload.OrderID, err)
	}
	database.AfterCommit(ctx, func() { metrics.RecordNotification(string(template)) })
	m.logger.Debug("Order mail job enqueued",
		zap.String("order_id", payload.OrderID),
		zap.String("template", string(template)))
	return nil
}

func (m *Mailer) AddAuthMailJob(ctx context.Context, template Template, payload AuthMailPayload) error {
	if err := m.queue.Enqueue(ctx, MailQueue, string(template), payload); err != nil {
		return fmt.Errorf("failed to enqueue %s mail: %w", template, err)
	}
	database.AfterCommit(ctx, func() { metrics.RecordNotification(string(template)) })
	return nil
}
