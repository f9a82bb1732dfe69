package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"bookstore/internal/app/webhooks"
)

type JobRunner interface {
	Run(ctx context.Context, job *webhooks.Job) (webhooks.JobResult, error)
}

type WebhookJobConsumer struct {
	runner JobRunner
	logger *zap.Logger
}

func NewWebhookJobConsumer(r JobRunner, l *zap.Logger) *WebhookJobConsumer {
	return &WebhookJobConsumer{runner: r, logger: l}
}

// HandleMessage runs one webhook job. Undecodable messages are dropped; a
// returned error asks the consumer to retry.
func (c *WebhookJobConsumer) HandleMessage(ctx context.Context, msg kafka.Message, attempt int) error {
	var job webhooks.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		c.logger.Error("Error unmarshalling webhook job", zap.Error(err), zap.String("raw_message", string(msg.Value)))
		return nil
	}
	job.Attempts = attempt

	logger := c.logger.With(
		zap.String("job_id", job.ID),
		zap.String("event_type", job.Name),
		zap.Int("attempt", attempt))

	result, err := c.runner.Run(ctx, &job)
	if err != nil {
		logger.Error("Error processing webhook job", zap.Error(err))
		return err
	}

	for _, line := range job.Logs() {
		logger.Info("Webhook job log", zap.String("order_id", result.OrderID), zap.String("log", line))
	}
	if result.Success {
		logger.Info("Webhook job succeeded", zap.String("order_id", result.OrderID))
		return nil
	}
	reason := ""
	if result.Log != nil {
		reason = *result.Log
	}
	logger.Warn("Webhook job finished without applying", zap.String("order_id", result.OrderID), zap.String("reason", reason))
	return nil
}
