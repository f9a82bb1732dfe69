package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage is a queued job waiting to be relayed to Kafka.
type OutboxMessage struct {
	ID          string
	Queue       string
	MessageType string
	Payload     []byte
	Status      OutboxMessageStatus
	Attempts    int
	CreatedAt   time.Time
	SentAt      *time.Time
}
