package orders

import (
	"time"

	"bookstore/internal/domain"
)

// Owner identifies who an order belongs to: a registered user or a guest attached after checkout.
type Owner struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Guest    bool   `json:"guest"`
}

type LineItem struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type Payment struct {
	TransactionID string               `json:"transaction_id"`
	Status        domain.PaymentStatus `json:"status"`
	Amount        int64                `json:"amount"`
	Method        string               `json:"method,omitempty"`
}

// Order is the order DTO handed to status rules, webhook handlers and HTTP responses.
type Order struct {
	ID         string                  `json:"id"`
	Status     domain.OrderStatus      `json:"status"`
	Owner      *Owner                  `json:"owner,omitempty"`
	TotalPrice int64                   `json:"total_price"`
	Items      []LineItem              `json:"items"`
	Shipping   *domain.ShippingDetails `json:"shipping,omitempty"`
	Payment    *Payment                `json:"payment,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Contact returns the username and email notifications should be addressed to.
func (o *Order) Contact() (username, email string) {
	if o == nil || o.Owner == nil {
		return "", ""
	}
	return o.Owner.Username, o.Owner.Email
}

// PaymentUpdate carries the fields a webhook handler changes on a payment record.
type PaymentUpdate struct {
	TransactionID string
	Status        domain.PaymentStatus
	Amount        int64
	Method        string
}

func mapOrder(o *domain.Order, items []domain.OrderItem, payment *domain.Payment) *Order {
	dto := &Order{
		ID:         o.ID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Shipping:   o.Shipping,
		Items:      make([]LineItem, 0, len(items)),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}

	switch {
	case o.UserID != nil:
		dto.Owner = &Owner{UserID: *o.UserID, Username: deref(o.Username), Email: deref(o.UserEmail)}
	case o.GuestEmail != nil:
		dto.Owner = &Owner{Username: deref(o.GuestName), Email: *o.GuestEmail, Guest: true}
	}

	for _, item := range items {
		dto.Items = append(dto.Items, LineItem{
			ID:        item.ID,
			ItemID:    item.ItemID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	if payment != nil {
		dto.Payment = &Payment{
			TransactionID: payment.TransactionID,
			Status:        payment.Status,
			Amount:        payment.Amount,
			Method:        payment.Method,
		}
	}
	return dto
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
