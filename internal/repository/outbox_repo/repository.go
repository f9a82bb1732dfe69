package outbox_repo

import (
	"context"

	"bookstore/internal/domain"
)

type OutboxRepository interface {
	CreateMessage(ctx context.Context, msg *domain.OutboxMessage) error
	// GetPendingMessages must run inside a transaction; rows stay locked until it ends.
	GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkMessagesAsSent(ctx context.Context, ids []string) error
	MarkMessageFailed(ctx context.Context, id string, maxAttempts int) error
}
