package domain

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrOwnerAlreadyAssigned = errors.New("order owner already assigned")
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusComplete  OrderStatus = "complete"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusRefunding OrderStatus = "refunding"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// transitions lists the statuses reachable from each status.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusComplete, OrderStatusExpired, OrderStatusCanceled},
	OrderStatusComplete:  {OrderStatusShipped, OrderStatusRefunding},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusRefunding: {OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusComplete, OrderStatusExpired, OrderStatusCanceled,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusRefunding, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle has an edge from s to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Order is the persisted order row with its owner columns resolved.
type Order struct {
	ID         string
	Status     OrderStatus
	UserID     *string
	Username   *string
	UserEmail  *string
	GuestEmail *string
	GuestName  *string
	TotalPrice int64
	Shipping   *ShippingDetails
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o *Order) HasOwner() bool {
	return o.UserID != nil || o.GuestEmail != nil
}

type OrderItem struct {
	ID        string
	OrderID   string
	ItemID    string
	Title     string
	UnitPrice int64
	Quantity  int
}

type ShippingDetails struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}
