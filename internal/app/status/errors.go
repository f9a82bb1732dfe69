package status

import (
	"fmt"

	"bookstore/internal/domain"
)

type OrderNotFoundError struct {
	OrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

func (e *OrderNotFoundError) Is(target error) bool {
	return target == domain.ErrOrderNotFound
}

// InvalidTransitionError is returned when the order is neither in the rule's
// source status nor already in its target status.
type InvalidTransitionError struct {
	From   domain.OrderStatus
	To     domain.OrderStatus
	Actual domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("must be in '%s' status to change to '%s'. Current: '%s'", e.From, e.To, e.Actual)
}

// OperationError wraps a failed cancel, ship or deliver.
type OperationError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("failed to %s order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
