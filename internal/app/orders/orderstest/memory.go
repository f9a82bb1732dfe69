// Package orderstest provides an in-memory orders.OrderService for tests.
package orderstest

import (
	"context"
	"sync"

	"bookstore/internal/app/orders"
	"bookstore/internal/domain"
)

type StatusWrite struct {
	OrderID string
	Status  domain.OrderStatus
}

type StockIncrement struct {
	OrderID  string
	ItemID   string
	Quantity int
}

type GuestAssignment struct {
	OrderID string
	Email   string
	Name    *string
}

// Service records every mutation it receives. Set the Err fields to make the
// matching operation fail.
type Service struct {
	mu     sync.Mutex
	orders map[string]*orders.Order

	StatusWrites     []StatusWrite
	StockIncrements  []StockIncrement
	GuestAssignments []GuestAssignment
	PaymentSaves     []orders.PaymentUpdate
	ShippingUpdates  []*domain.ShippingDetails

	UpdateStatusErr error
	RevertStockErr  error
	SavePaymentErr  error
}

var _ orders.OrderService = (*Service)(nil)

func New(seed ...*orders.Order) *Service {
	s := &Service{orders: make(map[string]*orders.Order)}
	for _, o := range seed {
		s.Put(o)
	}
	return s
}

func (s *Service) Put(o *orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = clone(o)
}

// Order returns a copy of the stored order, or nil.
func (s *Service) Order(id string) *orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.orders[id])
}

// Writes counts every recorded mutation.
func (s *Service) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.StatusWrites) + len(s.StockIncrements) + len(s.GuestAssignments) +
		len(s.PaymentSaves) + len(s.ShippingUpdates)
}

func (s *Service) GetOrder(_ context.Context, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.orders[orderID]), nil
}

func (s *Service) LockOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s *Service) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateStatusErr != nil {
		return nil, s.UpdateStatusErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, &orders.OrderError{OrderID: orderID, Op: "update status", Err: domain.ErrOrderNotFound}
	}
	s.StatusWrites = append(s.StatusWrites, StatusWrite{OrderID: orderID, Status: status})
	o.Status = status
	return clone(o), nil
}

func (s *Service) RevertOrderStocks(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RevertStockErr != nil {
		return s.RevertStockErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return &orders.OrderError{OrderID: orderID, Op: "revert stock", Err: domain.ErrOrderNotFound}
	}
	for _, item := range o.Items {
		s.StockIncrements = append(s.StockIncrements, StockIncrement{OrderID: orderID, ItemID: item.ItemID, Quantity: item.Quantity})
	}
	return nil
}

func (s *Service) AssignGuestToOrder(_ context.Context, orderID, email string, name *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return &orders.OrderError{OrderID: orderID, Op: "assign guest", Err: domain.ErrOrderNotFound}
	}
	if o.Owner != nil {
		return &orders.OrderError{OrderID: orderID, Op: "assign guest", Err: domain.ErrOwnerAlreadyAssigned}
	}
	s.GuestAssignments = append(s.GuestAssignments, GuestAssignment{OrderID: orderID, Email: email, Name: name})
	owner := &orders.Owner{Email: email, Guest: true}
	if name != nil {
		owner.Username = *name
	}
	o.Owner = owner
	return nil
}

func (s *Service) UpdateShipping(_ context.Context, orderID string, shipping *domain.ShippingDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.Shipping = shipping
	}
	s.ShippingUpdates = append(s.ShippingUpdates, shipping)
	return nil
}

func (s *Service) SavePayment(_ context.Context, orderID string, update orders.PaymentUpdate) (*orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SavePaymentErr != nil {
		return nil, s.SavePaymentErr
	}
	s.PaymentSaves = append(s.PaymentSaves, update)
	o, ok := s.orders[orderID]
	if !ok {
		return nil, &orders.OrderError{OrderID: orderID, Op: "save payment", Err: domain.ErrOrderNotFound}
	}
	p := o.Payment
	if p == nil {
		p = &orders.Payment{}
		o.Payment = p
	}
	if update.TransactionID != "" {
		p.TransactionID = update.TransactionID
	}
	if update.Method != "" {
		p.Method = update.Method
	}
	p.Status = update.Status
	p.Amount = update.Amount
	cp := *p
	return &cp, nil
}

func clone(o *orders.Order) *orders.Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Owner != nil {
		owner := *o.Owner
		cp.Owner = &owner
	}
	if o.Payment != nil {
		payment := *o.Payment
		cp.Payment = &payment
	}
	cp.Items = append([]orders.LineItem(nil), o.Items...)
	return &cp
}
