package webhooks

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v78"

	"bookstore/internal/app/orders"
	"bookstore/internal/domain"
)

type checkoutCompletedHandler struct {
	baseHandler
}

func NewCheckoutCompletedHandler(d HandlerDeps) Handler {
	return &checkoutCompletedHandler{newBase("CheckoutSessionCompleted", d)}
}

func (h *checkoutCompletedHandler) EventType() EventType { return EventCheckoutSessionCompleted }

func (h *checkoutCompletedHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if order.Status != domain.OrderStatusPending {
		return h.reject(order.ID, "Order %s must have a status of pending to complete. Current: %s", order.ID, order.Status), nil
	}

	txnID := intentID(session.PaymentIntent)
	if txnID == "" {
		return h.reject(order.ID, "Checkout session %s for Order %s carries no payment intent", session.ID, order.ID), nil
	}
	if order.Payment != nil && order.Payment.TransactionID != txnID {
		return h.reject(order.ID, "Transaction %s does not match payment %s of Order %s",
			txnID, order.Payment.TransactionID, order.ID), nil
	}

	paid := session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		(order.Payment != nil && order.Payment.Status == domain.PaymentStatusPaid)
	paymentStatus := domain.PaymentStatusUnpaid
	if paid {
		paymentStatus = domain.PaymentStatusPaid
	}
	if _, err := h.orders.SavePayment(ctx, order.ID, orders.PaymentUpdate{
		TransactionID: txnID,
		Status:        paymentStatus,
		Amount:        session.AmountTotal,
		Method:        firstMethod(session.PaymentMethodTypes),
	}); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	// Shipping and customer details arrive only on the session event.
	if shipping := shippingFromSession(session.ShippingDetails); shipping != nil {
		if err := h.orders.UpdateShipping(ctx, order.ID, shipping); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
	}
	if err := h.assignGuest(ctx, order, session.CustomerDetails); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if !paid {
		return h.reject(order.ID, "Order %s is awaiting payment for transaction %s", order.ID, txnID), nil
	}

	if _, err := h.transition(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusComplete); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	return succeed(""), nil
}

type checkoutExpiredHandler struct {
	baseHandler
}

func NewCheckoutExpiredHandler(d HandlerDeps) Handler {
	return &checkoutExpiredHandler{newBase("CheckoutSessionExpired", d)}
}

func (h *checkoutExpiredHandler) EventType() EventType { return EventCheckoutSessionExpired }

func (h *checkoutExpiredHandler) Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}

	if order.Status != domain.OrderStatusPending {
		return h.reject(order.ID, "Order %s must have a status of pending to expire. Current: %s", order.ID, order.Status), nil
	}

	txnID := intentID(session.PaymentIntent)
	if reason := checkPayment(order, txnID); reason != "" {
		return h.reject(order.ID, "%s", reason), nil
	}
	if order.Payment != nil {
		if _, err := h.orders.SavePayment(ctx, order.ID, orders.PaymentUpdate{
			Status: domain.PaymentStatusUnpaid,
			Amount: session.AmountTotal,
		}); err != nil {
			return Result{}, h.unexpected(order.ID, err)
		}
	}

	if _, err := h.transition(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusExpired); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	if err := h.orders.RevertOrderStocks(ctx, order.ID); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	if err := h.assignGuest(ctx, order, session.CustomerDetails); err != nil {
		return Result{}, h.unexpected(order.ID, err)
	}
	return succeed(""), nil
}

func shippingFromSession(s *stripe.ShippingDetails) *domain.ShippingDetails {
	if s == nil {
		return nil
	}
	shipping := &domain.ShippingDetails{Name: s.Name, Phone: s.Phone}
	if a := s.Address; a != nil {
		shipping.Line1 = a.Line1
		shipping.Line2 = a.Line2
		shipping.City = a.City
		shipping.State = a.State
		shipping.PostalCode = a.PostalCode
		shipping.Country = a.Country
	}
	return shipping
}
