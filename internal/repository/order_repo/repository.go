package order_repo

import (
	"context"

	"bookstore/internal/domain"
)

type OrderRepository interface {
	FindOrder(ctx context.Context, id string) (*domain.Order, error)
	// FindOrderForUpdate locks the order row until the surrounding transaction ends.
	FindOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
	FindOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	AssignGuest(ctx context.Context, orderID, email string, name *string) error
	UpdateShippingDetails(ctx context.Context, orderID string, shipping *domain.ShippingDetails) error
}
