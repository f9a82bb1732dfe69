package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/repository/payments_repo"
)

const uniqueViolation = "23505"

type pgPaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPaymentRepository(db *sql.DB, l *zap.Logger) payments_repo.PaymentRepository {
	return &pgPaymentRepository{db: db, logger: l}
}

func (r *pgPaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `
		SELECT id, order_id, transaction_id, status, amount, method, created_at, updated_at
		FROM payments
		WHERE order_id = $1
	`
	payment := &domain.Payment{}
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, orderID).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.TransactionID,
		&payment.Status,
		&payment.Amount,
		&payment.Method,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by order id %s: %w", orderID, err)
	}
	return payment, nil
}

func (r *pgPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, transaction_id, status, amount, method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.TransactionID,
		payment.Status,
		payment.Amount,
		payment.Method,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("payment for order %s: %w", payment.OrderID, domain.ErrPaymentAlreadyExists)
		}
		r.logger.Error("Failed to create payment", zap.String("order_id", payment.OrderID), zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *pgPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET transaction_id = $2, status = $3, amount = $4, method = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.TransactionID,
		payment.Status,
		payment.Amount,
		payment.Method,
		time.Now(),
	)
	if err != nil {
		r.logger.Error("Failed to update payment", zap.String("payment_id", payment.ID), zap.Error(err))
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
