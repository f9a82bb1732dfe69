package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookstore/internal/domain"
)

func TestCreate_UniqueViolationMapsToAlreadyExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPaymentRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err = repo.Create(context.Background(), &domain.Payment{ID: "p-1", OrderID: "order-1", TransactionID: "txn-1"})
	require.ErrorIs(t, err, domain.ErrPaymentAlreadyExists)
}

func TestFindByOrderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPaymentRepository(db, zap.NewNop())
	now := time.Now()

	cols := []string{"id", "order_id", "transaction_id", "status", "amount", "method", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p-1", "order-1", "txn-1", "paid", int64(100), "card", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments")).
		WithArgs("order-2").
		WillReturnError(sql.ErrNoRows)

	payment, err := repo.FindByOrderID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", payment.TransactionID)
	assert.Equal(t, domain.PaymentStatusPaid, payment.Status)

	_, err = repo.FindByOrderID(context.Background(), "order-2")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestUpdate_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPaymentRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), &domain.Payment{ID: "p-404", Status: domain.PaymentStatusUnpaid})
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
