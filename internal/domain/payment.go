package domain

import (
	"errors"
	"time"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrItemNotFound         = errors.New("catalog item not found")
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment is the provider-side payment record of an order. An order has at most one.
type Payment struct {
	ID            string
	OrderID       string
	TransactionID string
	Status        PaymentStatus
	Amount        int64
	Method        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
