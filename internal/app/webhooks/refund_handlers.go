package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"

	"bookstore/internal/app/orders"
	"bookstore/internal/domain"
)

// refundHandler holds the guards shared by the refund event handlers.
type refundHandler struct {
	baseHandler
}

func (h refundHandler) decode(data json.RawMessage, order *orders.Order) (*stripe.Refund, *Result, error) {
	var refund stripe.Refund
	if err := json.Unmarshal(data, &refund); err != nil {
		return nil, nil, h.unexpected(order.ID, err)
	}

	if order.Status != domain.OrderStatusComplete && order.Status != domain.OrderStatusRefunding {
		r := h.reject(order.ID, "Order %s must have a status of complete or refunding to refund. Current: %s",
			order.ID, order.Status)
		return nil, &r, nil
	}
	txnID := intentID(refund.PaymentIntent)
	if order.Payment == nil {
		r := h.reject(order.ID, "Order %s has no payment record to refund", order.ID)
		return nil, &r, nil
	}
	if order.Payment.TransactionID != txnID {
		r := h.reject(order.ID, "Refund %s targets transaction %s but Order %s was paid with %s",
			refund.ID, txnID, order.ID, order.Payment.TransactionID)
		return nil, &r, nil
	}
	return &refund, nil, nil
}

// ensureRefunding moves a complete order to refunding and leaves a refunding order alone.
func (h refundHandler) ensureRefunding(ctx context.Context, orderID string) error {
	_, err := h.transition(ctx, orderID, domain.OrderStatusComplete, domain.OrderStatusRefunding)
	return err
}

type refundCreatedHandler struct {
	refundHandler
}

func NewRefundCreatedHandler(d HandlerDeps) Handler {
	return &refundCreatedHandler{refundHandler{newBase("RefundCreated", d)}}
}

func (h *refundCreatedHandler) EventType() EventType { return EventRefundCreated }

func (h *refundCreatedHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	refund, rejected, err := h.decode(data, order)
	if err != nil {
		return Result{}, err
	}
	if rejected != nil {
		return *rejected, nil
	}

	if err := h.ensureRefunding(ctx, order.ID); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	return succeed(fmt.Sprintf("Refund %s created for Order %s", refund.ID, order.ID)), nil
}

type refundUpdatedHandler struct {
	refundHandler
}

func NewRefundUpdatedHandler(d HandlerDeps) Handler {
	return &refundUpdatedHandler{refundHandler{newBase("RefundUpdated", d)}}
}

func (h *refundUpdatedHandler) EventType() EventType { return EventRefundUpdated }

func (h *refundUpdatedHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	refund, rejected, err := h.decode(data, order)
	if err != nil {
		return Result{}, err
	}
	if rejected != nil {
		return *rejected, nil
	}

	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		if _, err := h.orders.SavePayment(ctx, order.ID, orders.PaymentUpdate{
			Status: domain.PaymentStatusRefunded,
			Amount: refund.Amount,
		}); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
		if err := h.ensureRefunding(ctx, order.ID); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
		if _, err := h.transition(ctx, order.ID, domain.OrderStatusRefunding, domain.OrderStatusRefunded); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
		return succeed(fmt.Sprintf("Refund %s succeeded for Order %s", refund.ID, order.ID)), nil

	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		if err := h.ensureRefunding(ctx, order.ID); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
		return succeed(fmt.Sprintf("Refund %s is %s for Order %s", refund.ID, refund.Status, order.ID)), nil

	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return h.reject(order.ID, "Refund %s is %s, handled by refund.failed", refund.ID, refund.Status), nil

	default:
		return h.reject(order.ID, "Refund %s has unknown status %q", refund.ID, refund.Status), nil
	}
}

type refundFailedHandler struct {
	refundHandler
}

func NewRefundFailedHandler(d HandlerDeps) Handler {
	return &refundFailedHandler{refundHandler{newBase("RefundFailed", d)}}
}

func (h *refundFailedHandler) EventType() EventType { return EventRefundFailed }

// Handle records nothing: the lifecycle has no edge back from refunding, so the
// order stays where it is and the customer is told about the failure.
func (h *refundFailedHandler) Handle(_ context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	refund, rejected, err := h.decode(data, order)
	if err != nil {
		return Result{}, err
	}
	if rejected != nil {
		return *rejected, nil
	}

	reason := string(refund.FailureReason)
	if reason == "" {
		reason = "unknown"
	}
	return succeed(fmt.Sprintf("Refund %s failed for Order %s: %s", refund.ID, order.ID, reason)), nil
}
