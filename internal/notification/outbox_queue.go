package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/repository/outbox_repo"
	"bookstore/internal/util"
)

// OutboxQueue stores jobs as outbox rows. Rows written with a transactional
// context commit or roll back together with that transaction.
type OutboxQueue struct {
	repo   outbox_repo.OutboxRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewOutboxQueue(repo outbox_repo.OutboxRepository, l *zap.Logger) *OutboxQueue {
	return &OutboxQueue{repo: repo, logger: l, now: time.Now, newID: util.GenerateUUID}
}

func (q *OutboxQueue) Enqueue(ctx context.Context, queueName, jobName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s job payload: %w", jobName, err)
	}

	msg := &domain.OutboxMessage{
		ID:          q.newID(),
		Queue:       queueName,
		MessageType: jobName,
		Payload:     body,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   q.now(),
	}
	if err := q.repo.CreateMessage(ctx, msg); err != nil {
		return err
	}
	q.logger.Debug("Job added to outbox",
		zap.String("message_id", msg.ID),
		zap.String("queue", queueName),
		zap.String("job_name", jobName))
	return nil
}
