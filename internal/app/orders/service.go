package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/repository/inventory_repo"
	"bookstore/internal/repository/order_repo"
	"bookstore/internal/repository/payments_repo"
	"bookstore/internal/util"
)

// OrderError names the order a persistence operation failed for.
type OrderError struct {
	OrderID string
	Op      string
	Err     error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("failed to %s for order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

type OrderService interface {
	// GetOrder returns nil without error when the order does not exist.
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// LockOrder is GetOrder holding the order row lock for the surrounding transaction.
	LockOrder(ctx context.Context, orderID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*Order, error)
	RevertOrderStocks(ctx context.Context, orderID string) error
	AssignGuestToOrder(ctx context.Context, orderID, email string, name *string) error
	UpdateShipping(ctx context.Context, orderID string, shipping *domain.ShippingDetails) error
	SavePayment(ctx context.Context, orderID string, update PaymentUpdate) (*Payment, error)
}

type OrderServiceDeps struct {
	Orders      order_repo.OrderRepository
	Payments    payments_repo.PaymentRepository
	Inventory   inventory_repo.InventoryRepository
	Transactor  database.Transactor
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

type orderService struct {
	orderRepo     order_repo.OrderRepository
	paymentRepo   payments_repo.PaymentRepository
	inventoryRepo inventory_repo.InventoryRepository
	tx            database.Transactor
	logger        *zap.Logger
	clock         func() time.Time
	newID         func() string
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = util.GenerateUUID
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		orderRepo:     deps.Orders,
		paymentRepo:   deps.Payments,
		inventoryRepo: deps.Inventory,
		tx:            deps.Transactor,
		logger:        logger,
		clock:         clock,
		newID:         newID,
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.load(ctx, orderID, s.orderRepo.FindOrder)
}

func (s *orderService) LockOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.load(ctx, orderID, s.orderRepo.FindOrderForUpdate)
}

func (s *orderService) load(ctx context.Context, orderID string, find func(context.Context, string) (*domain.Order, error)) (*Order, error) {
	order, err := find(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Debug("Order not found", zap.String("order_id", orderID))
			return nil, nil
		}
		return nil, &OrderError{OrderID: orderID, Op: "load order", Err: err}
	}

	items, err := s.orderRepo.FindOrderItems(ctx, orderID)
	if err != nil {
		return nil, &OrderError{OrderID: orderID, Op: "load order items", Err: err}
	}

	payment, err := s.paymentRepo.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, &OrderError{OrderID: orderID, Op: "load payment", Err: err}
	}
	return mapOrder(order, items, payment), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*Order, error) {
	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		s.logger.Error("Failed to update order status",
			zap.String("order_id", orderID),
			zap.String("to_status", string(status)),
			zap.Error(err))
		return nil, &OrderError{OrderID: orderID, Op: "update status", Err: err}
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &OrderError{OrderID: orderID, Op: "update status", Err: domain.ErrOrderNotFound}
	}
	return order, nil
}

func (s *orderService) RevertOrderStocks(ctx context.Context, orderID string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		items, err := s.orderRepo.FindOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.inventoryRepo.IncrementStock(ctx, item.ItemID, item.Quantity); err != nil {
				return err
			}
		}
		s.logger.Info("Order stock reverted", zap.String("order_id", orderID), zap.Int("items", len(items)))
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to revert order stock", zap.String("order_id", orderID), zap.Error(err))
		return &OrderError{OrderID: orderID, Op: "revert stock", Err: err}
	}
	return nil
}

func (s *orderService) AssignGuestToOrder(ctx context.Context, orderID, email string, name *string) error {
	if err := s.orderRepo.AssignGuest(ctx, orderID, email, name); err != nil {
		return &OrderError{OrderID: orderID, Op: "assign guest", Err: err}
	}
	s.logger.Info("Guest assigned to order", zap.String("order_id", orderID))
	return nil
}

func (s *orderService) UpdateShipping(ctx context.Context, orderID string, shipping *domain.ShippingDetails) error {
	if err := s.orderRepo.UpdateShippingDetails(ctx, orderID, shipping); err != nil {
		return &OrderError{OrderID: orderID, Op: "update shipping details", Err: err}
	}
	return nil
}

// SavePayment creates the order's payment record or updates the existing one.
func (s *orderService) SavePayment(ctx context.Context, orderID string, update PaymentUpdate) (*Payment, error) {
	existing, err := s.paymentRepo.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, &OrderError{OrderID: orderID, Op: "load payment", Err: err}
	}

	now := s.clock()
	if existing == nil {
		payment := &domain.Payment{
			ID:            s.newID(),
			OrderID:       orderID,
			TransactionID: update.TransactionID,
			Status:        update.Status,
			Amount:        update.Amount,
			Method:        update.Method,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			return nil, &OrderError{OrderID: orderID, Op: "create payment", Err: err}
		}
		return mapPayment(payment), nil
	}

	if update.TransactionID != "" {
		existing.TransactionID = update.TransactionID
	}
	if update.Method != "" {
		existing.Method = update.Method
	}
	existing.Status = update.Status
	existing.Amount = update.Amount
	existing.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, existing); err != nil {
		return nil, &OrderError{OrderID: orderID, Op: "update payment", Err: err}
	}
	return mapPayment(existing), nil
}

func mapPayment(p *domain.Payment) *Payment {
	return &Payment{TransactionID: p.TransactionID, Status: p.Status, Amount: p.Amount, Method: p.Method}
}
