package status

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/orders/orderstest"
	"bookstore/internal/domain"
	"bookstore/internal/notification"
)

type inlineTransactor struct{}

func (inlineTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type sentMail struct {
	template notification.Template
	payload  notification.OrderMailPayload
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) AddOrderMailJob(_ context.Context, template notification.Template, payload notification.OrderMailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{template: template, payload: payload})
	return nil
}

func newOrder(status domain.OrderStatus) *orders.Order {
	return &orders.Order{
		ID:     "order-1",
		Status: status,
		Owner:  &orders.Owner{UserID: "user-1", Username: "alice", Email: "alice@x.com"},
		Items: []orders.LineItem{
			{ID: "li-1", ItemID: "book-1", Quantity: 2},
			{ID: "li-2", ItemID: "book-2", Quantity: 1},
		},
	}
}

func newEngine(t *testing.T, svc *orderstest.Service) (*Engine, *recordingMailer) {
	t.Helper()
	mailer := &recordingMailer{}
	return NewEngine(svc, inlineTransactor{}, mailer, zaptest.NewLogger(t)), mailer
}

func TestChangeStatus_AlreadyInTargetIsNoop(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusExpired))
	engine, _ := newEngine(t, svc)
	hooks := 0

	order, err := engine.ChangeStatus(context.Background(), "order-1", Rule{
		From:       domain.OrderStatusPending,
		To:         domain.OrderStatusExpired,
		Validate:   func(*orders.Order) error { hooks++; return nil },
		PostUpdate: func(context.Context, *orders.Order) error { hooks++; return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, order.Status)
	assert.Zero(t, svc.Writes())
	assert.Zero(t, hooks)
}

func TestChangeStatus_InvalidTransition(t *testing.T) {
	for _, actual := range []domain.OrderStatus{
		domain.OrderStatusComplete,
		domain.OrderStatusCanceled,
		domain.OrderStatusRefunded,
	} {
		t.Run(string(actual), func(t *testing.T) {
			svc := orderstest.New(newOrder(actual))
			engine, _ := newEngine(t, svc)

			_, err := engine.ChangeStatus(context.Background(), "order-1", Rule{
				From: domain.OrderStatusPending,
				To:   domain.OrderStatusExpired,
			})

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, actual, invalid.Actual)
			assert.Equal(t,
				"must be in 'pending' status to change to 'expired'. Current: '"+string(actual)+"'",
				err.Error())
			assert.Zero(t, svc.Writes())
		})
	}
}

func TestChangeStatus_OrderNotFound(t *testing.T) {
	engine, _ := newEngine(t, orderstest.New())

	_, err := engine.ChangeStatus(context.Background(), "missing", Rule{
		From: domain.OrderStatusComplete,
		To:   domain.OrderStatusShipped,
	})

	var notFound *OrderNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.OrderID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestChangeStatus_ValidateAbortsBeforeWrite(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusPending))
	engine, _ := newEngine(t, svc)
	rejected := errors.New("rejected")
	postUpdates := 0

	_, err := engine.ChangeStatus(context.Background(), "order-1", Rule{
		From:       domain.OrderStatusPending,
		To:         domain.OrderStatusComplete,
		Validate:   func(*orders.Order) error { return rejected },
		PostUpdate: func(context.Context, *orders.Order) error { postUpdates++; return nil },
	})
	require.ErrorIs(t, err, rejected)
	assert.Zero(t, svc.Writes())
	assert.Zero(t, postUpdates)
}

func TestChangeStatus_PostUpdateSeesUpdatedOrder(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusPending))
	engine, _ := newEngine(t, svc)
	var seen domain.OrderStatus

	order, err := engine.ChangeStatus(context.Background(), "order-1", Rule{
		From: domain.OrderStatusPending,
		To:   domain.OrderStatusComplete,
		PostUpdate: func(_ context.Context, o *orders.Order) error {
			seen = o.Status
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusComplete, order.Status)
	assert.Equal(t, domain.OrderStatusComplete, seen)
	assert.Equal(t, []orderstest.StatusWrite{{OrderID: "order-1", Status: domain.OrderStatusComplete}}, svc.StatusWrites)
}

func TestChangeStatus_RejectsRuleOutsideLifecycle(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusRefunding))
	engine, _ := newEngine(t, svc)

	_, err := engine.ChangeStatus(context.Background(), "order-1", Rule{
		From: domain.OrderStatusRefunding,
		To:   domain.OrderStatusComplete,
	})
	require.Error(t, err)
	assert.Zero(t, svc.Writes())
}

func TestCancelOrder(t *testing.T) {
	t.Run("pending order is canceled and stock reverted once per item", func(t *testing.T) {
		svc := orderstest.New(newOrder(domain.OrderStatusPending))
		engine, mailer := newEngine(t, svc)

		order, err := engine.CancelOrder(context.Background(), "order-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCanceled, order.Status)
		assert.Equal(t, []orderstest.StockIncrement{
			{OrderID: "order-1", ItemID: "book-1", Quantity: 2},
			{OrderID: "order-1", ItemID: "book-2", Quantity: 1},
		}, svc.StockIncrements)
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, notification.TemplateOrderCanceled, mailer.sent[0].template)
		assert.Equal(t, "alice@x.com", mailer.sent[0].payload.Email)
	})

	t.Run("non-pending order fails with operation error", func(t *testing.T) {
		svc := orderstest.New(newOrder(domain.OrderStatusShipped))
		engine, mailer := newEngine(t, svc)

		_, err := engine.CancelOrder(context.Background(), "order-1")

		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "cancel", opErr.Op)
		var invalid *InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
		assert.Empty(t, svc.StockIncrements)
		assert.Empty(t, mailer.sent)
	})

	t.Run("repeated cancel does not revert stock twice", func(t *testing.T) {
		svc := orderstest.New(newOrder(domain.OrderStatusPending))
		engine, mailer := newEngine(t, svc)

		_, err := engine.CancelOrder(context.Background(), "order-1")
		require.NoError(t, err)
		_, err = engine.CancelOrder(context.Background(), "order-1")
		require.NoError(t, err)

		assert.Len(t, svc.StockIncrements, 2)
		assert.Len(t, mailer.sent, 1)
	})
}

func TestShipAndDeliver(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusComplete))
	engine, mailer := newEngine(t, svc)

	order, err := engine.ShipOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, order.Status)

	order, err = engine.DeliverOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, notification.TemplateOrderShipped, mailer.sent[0].template)
	assert.Equal(t, notification.TemplateOrderDelivered, mailer.sent[1].template)
}

func TestDeliverOrder_WrapsMailFailure(t *testing.T) {
	svc := orderstest.New(newOrder(domain.OrderStatusShipped))
	mailErr := errors.New("outbox unavailable")
	engine := NewEngine(svc, inlineTransactor{}, &recordingMailer{err: mailErr}, zaptest.NewLogger(t))

	_, err := engine.DeliverOrder(context.Background(), "order-1")
	require.ErrorIs(t, err, mailErr)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "deliver", opErr.Op)
	assert.Equal(t, "order-1", opErr.OrderID)
}
