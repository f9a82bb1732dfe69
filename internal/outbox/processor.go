package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookstore/internal/domain"
	"bookstore/internal/infrastructure/database"
	kafkaInfra "bookstore/internal/infrastructure/kafka"
	"bookstore/internal/repository/outbox_repo"
)

const HeaderJobName = "job-name"

type Config struct {
	// Topics maps an outbox queue name to its Kafka topic.
	Topics       map[string]string
	PollInterval time.Duration
	PollTimeout  time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Processor relays pending outbox rows to Kafka.
type Processor struct {
	tx         database.Transactor
	outboxRepo outbox_repo.OutboxRepository
	producer   kafkaInfra.Producer
	cfg        Config
	logger     *zap.Logger
}

func NewProcessor(
	tx database.Transactor,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafkaInfra.Producer,
	cfg Config,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Processor{
		tx:         tx,
		outboxRepo: outboxRepo,
		producer:   producer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start polls until ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.cfg.PollInterval))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Error processing outbox", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many rows were sent.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	if p.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PollTimeout)
		defer cancel()
	}

	var sent int
	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		messages, err := p.outboxRepo.GetPendingMessages(ctx, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found.")
			return nil
		}
		p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

		sentIDs := make([]string, 0, len(messages))
		for _, msg := range messages {
			if err := p.relay(ctx, msg); err != nil {
				if markErr := p.outboxRepo.MarkMessageFailed(ctx, msg.ID, p.attemptLimit(msg)); markErr != nil {
					return markErr
				}
				continue
			}
			sentIDs = append(sentIDs, msg.ID)
		}

		if err := p.outboxRepo.MarkMessagesAsSent(ctx, sentIDs); err != nil {
			return err
		}
		sent = len(sentIDs)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to process outbox batch: %w", err)
	}
	return sent, nil
}

func (p *Processor) relay(ctx context.Context, msg domain.OutboxMessage) error {
	topic, ok := p.cfg.Topics[msg.Queue]
	if !ok {
		p.logger.Error("No topic configured for outbox queue",
			zap.String("message_id", msg.ID),
			zap.String("queue", msg.Queue))
		return fmt.Errorf("no topic for queue %q", msg.Queue)
	}

	headers := map[string]string{HeaderJobName: msg.MessageType, "message-id": msg.ID}
	if err := p.producer.Produce(ctx, topic, []byte(msg.MessageType), msg.Payload, headers); err != nil {
		p.logger.Error("Failed to send message to Kafka",
			zap.String("message_id", msg.ID),
			zap.String("topic", topic),
			zap.Int("attempts", msg.Attempts+1),
			zap.Error(err))
		return err
	}
	p.logger.Debug("Message sent to Kafka successfully", zap.String("message_id", msg.ID), zap.String("topic", topic))
	return nil
}

// attemptLimit gives up at once on rows whose queue has no topic.
func (p *Processor) attemptLimit(msg domain.OutboxMessage) int {
	if _, ok := p.cfg.Topics[msg.Queue]; !ok {
		return 1
	}
	return p.cfg.MaxAttempts
}
