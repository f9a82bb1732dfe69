package webhooks

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v78"

	"bookstore/internal/app/orders"
	"bookstore/internal/domain"
)

type paymentSucceededHandler struct {
	baseHandler
}

func NewPaymentSucceededHandler(d HandlerDeps) Handler {
	return &paymentSucceededHandler{newBase("PaymentIntentSucceeded", d)}
}

func (h *paymentSucceededHandler) EventType() EventType { return EventPaymentIntentSucceeded }

func (h *paymentSucceededHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusComplete {
		return h.reject(order.ID, "Order %s must have a status of pending or complete to record a payment. Current: %s",
			order.ID, order.Status), nil
	}
	if order.Payment != nil && order.Payment.TransactionID != intent.ID {
		return h.reject(order.ID, "Transaction %s does not match payment %s of Order %s",
			intent.ID, order.Payment.TransactionID, order.ID), nil
	}
	if order.Status == domain.OrderStatusComplete && order.Payment != nil && order.Payment.Status == domain.PaymentStatusPaid {
		return h.reject(order.ID, "Order %s is already paid", order.ID), nil
	}

	if _, err := h.orders.SavePayment(ctx, order.ID, orders.PaymentUpdate{
		TransactionID: intent.ID,
		Status:        domain.PaymentStatusPaid,
		Amount:        intent.AmountReceived,
		Method:        firstMethod(intent.PaymentMethodTypes),
	}); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if order.Status == domain.OrderStatusPending {
		if _, err := h.transition(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusComplete); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
	}
	return succeed(""), nil
}

type paymentFailedHandler struct {
	baseHandler
}

func NewPaymentFailedHandler(d HandlerDeps) Handler {
	return &paymentFailedHandler{newBase("PaymentIntentPaymentFailed", d)}
}

func (h *paymentFailedHandler) EventType() EventType { return EventPaymentIntentFailed }

func (h *paymentFailedHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if order.Status != domain.OrderStatusPending {
		return h.reject(order.ID, "Order %s must have a status of pending to fail payment. Current: %s", order.ID, order.Status), nil
	}
	if order.Payment != nil && order.Payment.TransactionID != intent.ID {
		return h.reject(order.ID, "Transaction %s does not match payment %s of Order %s",
			intent.ID, order.Payment.TransactionID, order.ID), nil
	}

	if _, err := h.orders.SavePayment(ctx, order.ID, orders.PaymentUpdate{
		TransactionID: intent.ID,
		Status:        domain.PaymentStatusUnpaid,
		Amount:        intent.Amount,
		Method:        firstMethod(intent.PaymentMethodTypes),
	}); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if _, err := h.transition(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCanceled); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	if err := h.orders.RevertOrderStocks(ctx, order.ID); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	reason := "unknown reason"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	return succeed("Payment " + intent.ID + " failed: " + reason), nil
}
