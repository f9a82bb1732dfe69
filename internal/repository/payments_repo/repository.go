package payments_repo

import (
	"context"

	"bookstore/internal/domain"
)

type PaymentRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
}
