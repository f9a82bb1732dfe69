package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler handles one message. attempt starts at 1.
type MessageHandler func(ctx context.Context, msg kafka.Message, attempt int) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// delay returns the wait before the given retry, doubling from Backoff.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Retry   RetryPolicy
}

// DeadLetterTopic is where messages go after exhausting their retries.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// JobConsumer handles one message at a time from a topic, retrying failures
// in-process and dead-lettering messages that never succeed.
type JobConsumer struct {
	reader   Reader
	producer Producer
	topic    string
	handler  MessageHandler
	policy   RetryPolicy
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewJobConsumer(cfg ConsumerConfig, producer Producer, handler MessageHandler, l *zap.Logger) *JobConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: 0,
		Logger:         kafka.LoggerFunc(l.Sugar().Debugf),
		ErrorLogger:    kafka.LoggerFunc(l.Sugar().Errorf),
	})
	return newJobConsumer(reader, producer, cfg.Topic, handler, cfg.Retry, l)
}

func newJobConsumer(reader Reader, producer Producer, topic string, handler MessageHandler, policy RetryPolicy, l *zap.Logger) *JobConsumer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &JobConsumer{
		reader:   reader,
		producer: producer,
		topic:    topic,
		handler:  handler,
		policy:   policy,
		logger:   l.With(zap.String("topic", topic)),
		sleep:    sleepCtx,
	}
}

const maxFetchBackoff = 30 * time.Second

// Run blocks until ctx is canceled or the reader is closed. Fetch errors are
// retried with a capped exponential backoff.
func (c *JobConsumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka job consumer started", zap.Int("max_attempts", c.policy.MaxAttempts))
	failures := 0
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Kafka job consumer stopped")
				return nil
			}
			failures++
			wait := c.fetchDelay(failures)
			c.logger.Error("Error fetching message from Kafka, retrying",
				zap.Int("failures", failures),
				zap.Duration("retry_in", wait),
				zap.Error(err))
			if err := c.sleep(ctx, wait); err != nil {
				c.logger.Info("Kafka job consumer stopped")
				return nil
			}
			continue
		}
		failures = 0
		c.consume(ctx, m)
	}
}

func (c *JobConsumer) fetchDelay(failures int) time.Duration {
	d := c.policy.Backoff
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < failures && d < maxFetchBackoff; i++ {
		d *= 2
	}
	if d > maxFetchBackoff {
		d = maxFetchBackoff
	}
	return d
}

func (c *JobConsumer) consume(ctx context.Context, m kafka.Message) {
	logger := c.logger.With(
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset))

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		lastErr = c.attempt(ctx, m, attempt)
		if lastErr == nil {
			c.commit(ctx, m, logger)
			return
		}
		if ctx.Err() != nil {
			logger.Warn("Consumer stopping, message left uncommitted", zap.Error(lastErr))
			return
		}
		logger.Warn("Error handling Kafka message",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Error(lastErr))
		if attempt < c.policy.MaxAttempts {
			if err := c.sleep(ctx, c.policy.delay(attempt)); err != nil {
				return
			}
		}
	}

	if err := c.deadLetter(ctx, m, lastErr); err != nil {
		logger.Error("Failed to dead-letter message, leaving it uncommitted", zap.Error(err))
		return
	}
	logger.Error("Message dead-lettered after exhausting retries",
		zap.String("dlq_topic", DeadLetterTopic(c.topic)),
		zap.Error(lastErr))
	c.commit(ctx, m, logger)
}

func (c *JobConsumer) attempt(ctx context.Context, m kafka.Message, attempt int) error {
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}
	return c.handler(ctx, m, attempt)
}

func (c *JobConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	headers := map[string]string{
		"x-original-topic": m.Topic,
		"x-attempts":       strconv.Itoa(c.policy.MaxAttempts),
	}
	if cause != nil {
		headers["x-error"] = cause.Error()
	}
	for _, h := range m.Headers {
		if _, ok := headers[h.Key]; !ok {
			headers[h.Key] = string(h.Value)
		}
	}
	return c.producer.Produce(ctx, DeadLetterTopic(c.topic), m.Key, m.Value, headers)
}

func (c *JobConsumer) commit(ctx context.Context, m kafka.Message, logger *zap.Logger) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		logger.Error("Failed to commit offset for message", zap.Error(err))
		return
	}
	logger.Debug("Committed message offset")
}

func (c *JobConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka consumer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka consumer: %w", err)
	}
	c.logger.Info("Kafka consumer closed.")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
