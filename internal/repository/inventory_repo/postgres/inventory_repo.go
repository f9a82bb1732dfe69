package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/repository/inventory_repo"
)

type pgInventoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewInventoryRepository(db *sql.DB, l *zap.Logger) inventory_repo.InventoryRepository {
	return &pgInventoryRepository{db: db, logger: l}
}

func (r *pgInventoryRepository) IncrementStock(ctx context.Context, itemID string, quantity int) error {
	query := `UPDATE books SET stock_quantity = stock_quantity + $2, updated_at = $3 WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, itemID, quantity, time.Now())
	if err != nil {
		r.logger.Error("Failed to increment stock", zap.String("item_id", itemID), zap.Int("quantity", quantity), zap.Error(err))
		return fmt.Errorf("failed to increment stock of item %s: %w", itemID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	r.logger.Debug("Stock incremented", zap.String("item_id", itemID), zap.Int("quantity", quantity))
	return nil
}
