package status

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/metrics"
	"bookstore/internal/notification"
)

// Rule describes one guarded transition. Validate runs before the write and
// may abort it; PostUpdate runs after the write inside the same transaction.
type Rule struct {
	From       domain.OrderStatus
	To         domain.OrderStatus
	Validate   func(order *orders.Order) error
	PostUpdate func(ctx context.Context, order *orders.Order) error
}

type OrderMailer interface {
	AddOrderMailJob(ctx context.Context, template notification.Template, payload notification.OrderMailPayload) error
}

type Engine struct {
	orders orders.OrderService
	tx     database.Transactor
	mailer OrderMailer
	logger *zap.Logger
}

func NewEngine(o orders.OrderService, tx database.Transactor, mailer OrderMailer, l *zap.Logger) *Engine {
	return &Engine{orders: o, tx: tx, mailer: mailer, logger: l}
}

// ChangeStatus applies rule to the order. An order already in rule.To is
// returned unchanged without any write or hook.
func (e *Engine) ChangeStatus(ctx context.Context, orderID string, rule Rule) (*orders.Order, error) {
	if !rule.From.CanTransitionTo(rule.To) {
		return nil, fmt.Errorf("no transition from '%s' to '%s'", rule.From, rule.To)
	}

	order, err := e.orders.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}

	if order.Status == rule.To {
		e.logger.Debug("Order already in target status",
			zap.String("order_id", orderID),
			zap.String("to_status", string(rule.To)))
		return order, nil
	}
	if order.Status != rule.From {
		return nil, &InvalidTransitionError{From: rule.From, To: rule.To, Actual: order.Status}
	}

	if rule.Validate != nil {
		if err := rule.Validate(order); err != nil {
			return nil, err
		}
	}

	updated, err := e.orders.UpdateStatus(ctx, orderID, rule.To)
	if err != nil {
		return nil, err
	}
	database.AfterCommit(ctx, func() {
		metrics.RecordStatusTransition(string(rule.From), string(rule.To))
	})
	e.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from_status", string(rule.From)),
		zap.String("to_status", string(rule.To)))

	if rule.PostUpdate != nil {
		if err := rule.PostUpdate(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (e *Engine) CancelOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.run(ctx, "cancel", orderID, Rule{
		From: domain.OrderStatusPending,
		To:   domain.OrderStatusCanceled,
		PostUpdate: func(ctx context.Context, order *orders.Order) error {
			if err := e.orders.RevertOrderStocks(ctx, order.ID); err != nil {
				return err
			}
			return e.notify(ctx, notification.TemplateOrderCanceled, order)
		},
	})
}

func (e *Engine) ShipOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.run(ctx, "ship", orderID, Rule{
		From: domain.OrderStatusComplete,
		To:   domain.OrderStatusShipped,
		PostUpdate: func(ctx context.Context, order *orders.Order) error {
			return e.notify(ctx, notification.TemplateOrderShipped, order)
		},
	})
}

func (e *Engine) DeliverOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.run(ctx, "deliver", orderID, Rule{
		From: domain.OrderStatusShipped,
		To:   domain.OrderStatusDelivered,
		PostUpdate: func(ctx context.Context, order *orders.Order) error {
			return e.notify(ctx, notification.TemplateOrderDelivered, order)
		},
	})
}

func (e *Engine) run(ctx context.Context, op, orderID string, rule Rule) (*orders.Order, error) {
	var result *orders.Order
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := e.ChangeStatus(ctx, orderID, rule)
		if err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		e.logger.Error("Order status operation failed",
			zap.String("operation", op),
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, &OperationError{Op: op, OrderID: orderID, Err: err}
	}
	return result, nil
}

func (e *Engine) notify(ctx context.Context, template notification.Template, order *orders.Order) error {
	username, email := order.Contact()
	return e.mailer.AddOrderMailJob(ctx, template, notification.OrderMailPayload{
		OrderID:  order.ID,
		Email:    email,
		Username: username,
	})
}
