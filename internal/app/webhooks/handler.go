package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/status"
	"bookstore/internal/domain"
)

// Handler applies one payment-provider event type to an order.
type Handler interface {
	EventType() EventType
	Handle(ctx context.Context, data json.RawMessage, order *orders.Order) (Result, error)
}

type StatusChanger interface {
	ChangeStatus(ctx context.Context, orderID string, rule status.Rule) (*orders.Order, error)
}

type HandlerDeps struct {
	Orders orders.OrderService
	Status StatusChanger
	Logger *zap.Logger
}

// NewHandlers returns one handler per known event type.
func NewHandlers(d HandlerDeps) []Handler {
	return []Handler{
		NewCheckoutCompletedHandler(d),
		NewCheckoutExpiredHandler(d),
		NewPaymentSucceededHandler(d),
		NewPaymentFailedHandler(d),
		NewRefundCreatedHandler(d),
		NewRefundUpdatedHandler(d),
		NewRefundFailedHandler(d),
	}
}

// UnexpectedError hides the cause of a handler fault behind a message naming
// only the handler and the order.
type UnexpectedError struct {
	Handler string
	OrderID string
	cause   error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("Failed to handle %s event for Order %s. An unexpected error occurred.", e.Handler, e.OrderID)
}

func (e *UnexpectedError) Unwrap() error { return e.cause }

type baseHandler struct {
	name   string
	orders orders.OrderService
	status StatusChanger
	logger *zap.Logger
}

func newBase(name string, d HandlerDeps) baseHandler {
	return baseHandler{
		name:   name,
		orders: d.Orders,
		status: d.Status,
		logger: d.Logger.With(zap.String("handler", name)),
	}
}

func (h baseHandler) unexpected(orderID string, err error) error {
	h.logger.Error("Unexpected error while handling event", zap.String("order_id", orderID), zap.Error(err))
	return &UnexpectedError{Handler: h.name, OrderID: orderID, cause: err}
}

func (h baseHandler) reject(orderID, format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	h.logger.Info("Event rejected", zap.String("order_id", orderID), zap.String("reason", msg))
	return Result{Success: false, Log: &msg}
}

// transition moves the order from one status to another through the status engine.
func (h baseHandler) transition(ctx context.Context, orderID string, from, to domain.OrderStatus) (*orders.Order, error) {
	return h.status.ChangeStatus(ctx, orderID, status.Rule{From: from, To: to})
}

// assignGuest attaches the checkout contact to an ownerless order.
func (h baseHandler) assignGuest(ctx context.Context, order *orders.Order, details *stripe.CheckoutSessionCustomerDetails) error {
	if order.Owner != nil {
		return nil
	}
	if details == nil {
		h.logger.Info("Session has no customer details, guest not assigned", zap.String("order_id", order.ID))
		return nil
	}
	email := strings.TrimSpace(details.Email)
	if email == "" {
		h.logger.Info("Session customer has no email, guest not assigned", zap.String("order_id", order.ID))
		return nil
	}
	var name *string
	if trimmed := strings.TrimSpace(details.Name); trimmed != "" {
		name = &trimmed
	}

	err := h.orders.AssignGuestToOrder(ctx, order.ID, email, name)
	if errors.Is(err, domain.ErrOwnerAlreadyAssigned) {
		h.logger.Info("Order owner assigned concurrently, guest skipped", zap.String("order_id", order.ID))
		return nil
	}
	return err
}

func succeed(log string) Result {
	if log == "" {
		return Result{Success: true}
	}
	return Result{Success: true, Log: &log}
}

// intentID reads the payment intent id that the provider sends either as a
// bare id or as an expanded object.
func intentID(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func firstMethod(types []string) string {
	if len(types) == 0 {
		return ""
	}
	return types[0]
}

// checkPayment reports the inconsistency between the stored payment record
// and the transaction carried by an event, or "" when they agree.
func checkPayment(order *orders.Order, transactionID string) string {
	switch {
	case order.Payment == nil && transactionID != "":
		return fmt.Sprintf("Order %s has no payment record for transaction %s", order.ID, transactionID)
	case order.Payment != nil && order.Payment.TransactionID != transactionID:
		return fmt.Sprintf("Transaction %s does not match payment %s of Order %s",
			transactionID, order.Payment.TransactionID, order.ID)
	}
	return ""
}
