package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/orders/orderstest"
	"bookstore/internal/app/status"
	"bookstore/internal/domain"
	"bookstore/internal/notification"
)

type inlineTransactor struct {
	calls int
}

func (t *inlineTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type sentMail struct {
	template notification.Template
	payload  notification.OrderMailPayload
}

type recordingMailer struct {
	sent []sentMail
}

func (m *recordingMailer) AddOrderMailJob(_ context.Context, template notification.Template, payload notification.OrderMailPayload) error {
	m.sent = append(m.sent, sentMail{template: template, payload: payload})
	return nil
}

func newDeps(t *testing.T, svc *orderstest.Service) HandlerDeps {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return HandlerDeps{
		Orders: svc,
		Status: status.NewEngine(svc, &inlineTransactor{}, &recordingMailer{}, logger),
		Logger: logger,
	}
}

func testOrder(st domain.OrderStatus) *orders.Order {
	return &orders.Order{
		ID:         "order-1",
		Status:     st,
		TotalPrice: 100,
		Items: []orders.LineItem{
			{ID: "li-1", ItemID: "book-1", Quantity: 2},
			{ID: "li-2", ItemID: "book-2", Quantity: 1},
		},
	}
}

func withPayment(o *orders.Order, txnID string, st domain.PaymentStatus) *orders.Order {
	o.Payment = &orders.Payment{TransactionID: txnID, Status: st, Amount: o.TotalPrice}
	return o
}

func withUser(o *orders.Order) *orders.Order {
	o.Owner = &orders.Owner{UserID: "user-1", Username: "alice", Email: "alice@x.com"}
	return o
}

func payload(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func handle(t *testing.T, h Handler, svc *orderstest.Service, data json.RawMessage) (Result, error) {
	t.Helper()
	order, err := svc.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.NotNil(t, order)
	return h.Handle(context.Background(), data, order)
}

func logOf(r Result) string {
	if r.Log == nil {
		return ""
	}
	return *r.Log
}

func TestCheckoutExpired_RejectsNonPendingOrder(t *testing.T) {
	svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "txn-1", domain.PaymentStatusPaid))
	h := NewCheckoutExpiredHandler(newDeps(t, svc))

	res, err := handle(t, h, svc, payload(t, map[string]any{"payment_intent": "txn-1", "amount_total": 100}))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, logOf(res), "must have a status of pending")
	assert.Empty(t, svc.StatusWrites)
	assert.Empty(t, svc.StockIncrements)
	assert.Zero(t, svc.Writes())
}

func TestCheckoutExpired_PaymentConsistency(t *testing.T) {
	cases := []struct {
		name  string
		order *orders.Order
		data  map[string]any
	}{
		{
			name:  "no payment record but event has transaction",
			order: testOrder(domain.OrderStatusPending),
			data:  map[string]any{"payment_intent": "txn-1"},
		},
		{
			name:  "transaction mismatch",
			order: withPayment(testOrder(domain.OrderStatusPending), "txn-1", domain.PaymentStatusUnpaid),
			data:  map[string]any{"payment_intent": "txn-other"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := orderstest.New(tc.order)
			h := NewCheckoutExpiredHandler(newDeps(t, svc))

			res, err := handle(t, h, svc, payload(t, tc.data))
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Zero(t, svc.Writes())
		})
	}
}

func TestCheckoutExpired_AssignsTrimmedGuest(t *testing.T) {
	svc := orderstest.New(testOrder(domain.OrderStatusPending))
	h := NewCheckoutExpiredHandler(newDeps(t, svc))

	res, err := handle(t, h, svc, payload(t, map[string]any{
		"customer_details": map[string]any{"email": " guest@x.com ", "name": "  "},
	}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, svc.GuestAssignments, 1)
	assert.Equal(t, orderstest.GuestAssignment{OrderID: "order-1", Email: "guest@x.com", Name: nil}, svc.GuestAssignments[0])
}

func TestCheckoutExpired_SkipsGuestWithoutEmail(t *testing.T) {
	for name, data := range map[string]map[string]any{
		"no customer details": {},
		"blank email":         {"customer_details": map[string]any{"email": "   ", "name": "Ann"}},
	} {
		t.Run(name, func(t *testing.T) {
			svc := orderstest.New(testOrder(domain.OrderStatusPending))
			h := NewCheckoutExpiredHandler(newDeps(t, svc))

			res, err := handle(t, h, svc, payload(t, data))
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Empty(t, svc.GuestAssignments)
			assert.Equal(t, domain.OrderStatusExpired, svc.Order("order-1").Status)
		})
	}
}

func TestCheckoutExpired_KeepsExistingOwner(t *testing.T) {
	svc := orderstest.New(withUser(testOrder(domain.OrderStatusPending)))
	h := NewCheckoutExpiredHandler(newDeps(t, svc))

	_, err := handle(t, h, svc, payload(t, map[string]any{
		"customer_details": map[string]any{"email": "guest@x.com"},
	}))
	require.NoError(t, err)
	assert.Empty(t, svc.GuestAssignments)
}

func TestCheckoutExpired_UnexpectedErrorIsSanitized(t *testing.T) {
	svc := orderstest.New(withPayment(testOrder(domain.OrderStatusPending), "txn-1", domain.PaymentStatusUnpaid))
	dbErr := errors.New("pq: connection refused")
	svc.SavePaymentErr = dbErr
	h := NewCheckoutExpiredHandler(newDeps(t, svc))

	_, err := handle(t, h, svc, payload(t, map[string]any{"payment_intent": "txn-1", "amount_total": 100}))
	require.Error(t, err)
	assert.Equal(t, "Failed to handle CheckoutSessionExpired event for Order order-1. An unexpected error occurred.", err.Error())
	assert.ErrorIs(t, err, dbErr)

	var unexpected *UnexpectedError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "order-1", unexpected.OrderID)
}

func TestCheckoutCompleted(t *testing.T) {
	t.Run("paid session completes order", func(t *testing.T) {
		svc := orderstest.New(testOrder(domain.OrderStatusPending))
		h := NewCheckoutCompletedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{
			"id":                   "cs_1",
			"payment_intent":       map[string]any{"id": "pi_1", "object": "payment_intent"},
			"payment_status":       "paid",
			"amount_total":         100,
			"payment_method_types": []string{"card"},
			"customer_details":     map[string]any{"email": "ann@x.com", "name": " Ann "},
			"shipping_details": map[string]any{
				"name":    "Ann",
				"address": map[string]any{"line1": "1 Main St", "city": "Oslo", "country": "NO"},
			},
		}))
		require.NoError(t, err)
		assert.True(t, res.Success)

		order := svc.Order("order-1")
		assert.Equal(t, domain.OrderStatusComplete, order.Status)
		require.NotNil(t, order.Payment)
		assert.Equal(t, orders.Payment{TransactionID: "pi_1", Status: domain.PaymentStatusPaid, Amount: 100, Method: "card"}, *order.Payment)
		require.NotNil(t, order.Shipping)
		assert.Equal(t, "Oslo", order.Shipping.City)
		require.Len(t, svc.GuestAssignments, 1)
		require.NotNil(t, svc.GuestAssignments[0].Name)
		assert.Equal(t, "Ann", *svc.GuestAssignments[0].Name)
	})

	t.Run("unpaid session records payment and waits", func(t *testing.T) {
		svc := orderstest.New(testOrder(domain.OrderStatusPending))
		h := NewCheckoutCompletedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{
			"payment_intent": "pi_1", "payment_status": "unpaid", "amount_total": 100,
		}))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, logOf(res), "awaiting payment")
		require.Len(t, svc.PaymentSaves, 1)
		assert.Equal(t, domain.PaymentStatusUnpaid, svc.PaymentSaves[0].Status)
		assert.Empty(t, svc.StatusWrites)
	})

	t.Run("unpaid session keeps shipping and guest for the later payment", func(t *testing.T) {
		svc := orderstest.New(testOrder(domain.OrderStatusPending))
		deps := newDeps(t, svc)

		res, err := handle(t, NewCheckoutCompletedHandler(deps), svc, payload(t, map[string]any{
			"payment_intent":   "txn-1",
			"payment_status":   "unpaid",
			"amount_total":     100,
			"customer_details": map[string]any{"email": " ann@x.com ", "name": "Ann"},
			"shipping_details": map[string]any{
				"name":    "Ann",
				"address": map[string]any{"line1": "1 Main St", "city": "Oslo", "country": "NO"},
			},
		}))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, logOf(res), "awaiting payment")
		assert.Empty(t, svc.StatusWrites)
		require.Len(t, svc.ShippingUpdates, 1)
		require.Len(t, svc.GuestAssignments, 1)
		assert.Equal(t, "ann@x.com", svc.GuestAssignments[0].Email)

		res, err = handle(t, NewPaymentSucceededHandler(deps), svc, payload(t, map[string]any{
			"id": "txn-1", "amount_received": 100,
		}))
		require.NoError(t, err)
		assert.True(t, res.Success)

		order := svc.Order("order-1")
		assert.Equal(t, domain.OrderStatusComplete, order.Status)
		require.NotNil(t, order.Shipping)
		assert.Equal(t, "1 Main St", order.Shipping.Line1)
		username, email := order.Contact()
		assert.Equal(t, "Ann", username)
		assert.Equal(t, "ann@x.com", email)
	})

	t.Run("transaction mismatch is rejected", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusPending), "pi_1", domain.PaymentStatusUnpaid))
		h := NewCheckoutCompletedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"payment_intent": "pi_2", "payment_status": "paid"}))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, svc.Writes())
	})
}

func TestPaymentSucceeded(t *testing.T) {
	t.Run("pending order becomes complete", func(t *testing.T) {
		svc := orderstest.New(testOrder(domain.OrderStatusPending))
		h := NewPaymentSucceededHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{
			"id": "pi_1", "amount_received": 100, "payment_method_types": []string{"card"},
		}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		order := svc.Order("order-1")
		assert.Equal(t, domain.OrderStatusComplete, order.Status)
		assert.Equal(t, domain.PaymentStatusPaid, order.Payment.Status)
	})

	t.Run("already paid order is a duplicate", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "pi_1", domain.PaymentStatusPaid))
		h := NewPaymentSucceededHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "pi_1", "amount_received": 100}))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, svc.Writes())
	})

	t.Run("complete but unpaid order is marked paid without transition", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "pi_1", domain.PaymentStatusUnpaid))
		h := NewPaymentSucceededHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "pi_1", "amount_received": 100}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, svc.StatusWrites)
		assert.Equal(t, domain.PaymentStatusPaid, svc.Order("order-1").Payment.Status)
	})
}

func TestPaymentFailed_CancelsAndRevertsStock(t *testing.T) {
	svc := orderstest.New(testOrder(domain.OrderStatusPending))
	h := NewPaymentFailedHandler(newDeps(t, svc))

	res, err := handle(t, h, svc, payload(t, map[string]any{
		"id":                 "pi_1",
		"amount":             100,
		"last_payment_error": map[string]any{"message": "Your card was declined."},
	}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, logOf(res), "Your card was declined.")
	assert.Equal(t, domain.OrderStatusCanceled, svc.Order("order-1").Status)
	assert.Len(t, svc.StockIncrements, 2)
	assert.Equal(t, domain.PaymentStatusUnpaid, svc.PaymentSaves[0].Status)
}

func TestRefundCreated(t *testing.T) {
	t.Run("complete order moves to refunding", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "pi_1", domain.PaymentStatusPaid))
		h := NewRefundCreatedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "re_1", "payment_intent": "pi_1", "amount": 100}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, domain.OrderStatusRefunding, svc.Order("order-1").Status)
	})

	t.Run("refunding order is left alone", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusRefunding), "pi_1", domain.PaymentStatusPaid))
		h := NewRefundCreatedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "re_1", "payment_intent": "pi_1"}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, svc.StatusWrites)
	})

	rejected := map[string]*orders.Order{
		"pending order":        withPayment(testOrder(domain.OrderStatusPending), "pi_1", domain.PaymentStatusPaid),
		"no payment record":    testOrder(domain.OrderStatusComplete),
		"transaction mismatch": withPayment(testOrder(domain.OrderStatusComplete), "pi_2", domain.PaymentStatusPaid),
	}
	for name, order := range rejected {
		t.Run(name, func(t *testing.T) {
			svc := orderstest.New(order)
			h := NewRefundCreatedHandler(newDeps(t, svc))

			res, err := handle(t, h, svc, payload(t, map[string]any{"id": "re_1", "payment_intent": "pi_1"}))
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Zero(t, svc.Writes())
		})
	}
}

func TestRefundUpdated(t *testing.T) {
	t.Run("succeeded refund refunds complete order", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "pi_1", domain.PaymentStatusPaid))
		h := NewRefundUpdatedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{
			"id": "re_1", "payment_intent": "pi_1", "amount": 100, "status": "succeeded",
		}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		order := svc.Order("order-1")
		assert.Equal(t, domain.OrderStatusRefunded, order.Status)
		assert.Equal(t, domain.PaymentStatusRefunded, order.Payment.Status)
		assert.Equal(t, []orderstest.StatusWrite{
			{OrderID: "order-1", Status: domain.OrderStatusRefunding},
			{OrderID: "order-1", Status: domain.OrderStatusRefunded},
		}, svc.StatusWrites)
	})

	t.Run("pending refund keeps order refunding", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusComplete), "pi_1", domain.PaymentStatusPaid))
		h := NewRefundUpdatedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "re_1", "payment_intent": "pi_1", "status": "pending"}))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, domain.OrderStatusRefunding, svc.Order("order-1").Status)
	})

	t.Run("failed refund defers to refund.failed", func(t *testing.T) {
		svc := orderstest.New(withPayment(testOrder(domain.OrderStatusRefunding), "pi_1", domain.PaymentStatusPaid))
		h := NewRefundUpdatedHandler(newDeps(t, svc))

		res, err := handle(t, h, svc, payload(t, map[string]any{"id": "re_1", "payment_intent": "pi_1", "status": "failed"}))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, svc.Writes())
	})
}

func TestRefundFailed_ReportsReasonWithoutWrites(t *testing.T) {
	svc := orderstest.New(withPayment(testOrder(domain.OrderStatusRefunding), "pi_1", domain.PaymentStatusPaid))
	h := NewRefundFailedHandler(newDeps(t, svc))

	res, err := handle(t, h, svc, payload(t, map[string]any{
		"id": "re_1", "payment_intent": "pi_1", "status": "failed", "failure_reason": "expired_or_canceled_card",
	}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, logOf(res), "expired_or_canceled_card")
	assert.Zero(t, svc.Writes())
	assert.Equal(t, domain.OrderStatusRefunding, svc.Order("order-1").Status)
}

func TestNewHandlers_CoversEveryKnownEvent(t *testing.T) {
	seen := map[EventType]bool{}
	for _, h := range NewHandlers(newDeps(t, orderstest.New())) {
		seen[h.EventType()] = true
	}
	for eventType := range eventFamilies {
		assert.True(t, seen[eventType], "no handler for %s", eventType)
	}
}
