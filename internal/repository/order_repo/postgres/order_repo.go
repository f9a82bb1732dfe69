package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/repository/order_repo"
)

const selectOrder = `
	SELECT o.id, o.status, o.user_id, u.username, u.email, o.guest_email, o.guest_name,
	       o.total_price, o.shipping_details, o.created_at, o.updated_at
	FROM orders o
	LEFT JOIN users u ON u.id = o.user_id
	WHERE o.id = $1`

type pgOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, l *zap.Logger) order_repo.OrderRepository {
	return &pgOrderRepository{db: db, logger: l}
}

func (r *pgOrderRepository) FindOrder(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOrder(ctx, selectOrder, id)
}

func (r *pgOrderRepository) FindOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOrder(ctx, selectOrder+` FOR UPDATE OF o`, id)
}

func (r *pgOrderRepository) findOrder(ctx context.Context, query, id string) (*domain.Order, error) {
	order := &domain.Order{}
	var (
		userID, username, userEmail sql.NullString
		guestEmail, guestName       sql.NullString
		shipping                    []byte
	)
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.Status,
		&userID,
		&username,
		&userEmail,
		&guestEmail,
		&guestName,
		&order.TotalPrice,
		&shipping,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		r.logger.Error("Failed to get order by ID", zap.String("order_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}

	order.UserID = nullString(userID)
	order.Username = nullString(username)
	order.UserEmail = nullString(userEmail)
	order.GuestEmail = nullString(guestEmail)
	order.GuestName = nullString(guestName)

	if len(shipping) > 0 {
		var details domain.ShippingDetails
		if err := json.Unmarshal(shipping, &details); err != nil {
			return nil, fmt.Errorf("failed to decode shipping details of order %s: %w", id, err)
		}
		order.Shipping = &details
	}
	return order, nil
}

func (r *pgOrderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		r.logger.Error("Failed to update order status", zap.String("order_id", id), zap.Error(err))
		return fmt.Errorf("failed to update order %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("No rows affected when updating order status, order might not exist", zap.String("order_id", id))
		return domain.ErrOrderNotFound
	}
	r.logger.Debug("Order status updated", zap.String("order_id", id), zap.String("new_status", string(status)))
	return nil
}

func (r *pgOrderRepository) FindOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, item_id, title, unit_price, quantity FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query order items", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get items of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemID, &item.Title, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func (r *pgOrderRepository) AssignGuest(ctx context.Context, orderID, email string, name *string) error {
	query := `
		UPDATE orders SET guest_email = $2, guest_name = $3, updated_at = $4
		WHERE id = $1 AND user_id IS NULL AND guest_email IS NULL`
	var guestName sql.NullString
	if name != nil {
		guestName = sql.NullString{String: *name, Valid: true}
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, orderID, email, guestName, time.Now())
	if err != nil {
		r.logger.Error("Failed to assign guest to order", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("failed to assign guest to order %s: %w", orderID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrOwnerAlreadyAssigned
	}
	return nil
}

func (r *pgOrderRepository) UpdateShippingDetails(ctx context.Context, orderID string, shipping *domain.ShippingDetails) error {
	var payload sql.NullString
	if shipping != nil {
		raw, err := json.Marshal(shipping)
		if err != nil {
			return fmt.Errorf("failed to encode shipping details: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	query := `UPDATE orders SET shipping_details = $2, updated_at = $3 WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, orderID, payload, time.Now())
	if err != nil {
		r.logger.Error("Failed to update shipping details", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("failed to update shipping details of order %s: %w", orderID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
