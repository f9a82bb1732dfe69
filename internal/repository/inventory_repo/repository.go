package inventory_repo

import "context"

type InventoryRepository interface {
	IncrementStock(ctx context.Context, itemID string, quantity int) error
}
