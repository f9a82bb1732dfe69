package webhooks

import (
	"encoding/json"
	"sync"
)

type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventCheckoutSessionExpired   EventType = "checkout.session.expired"
	EventPaymentIntentSucceeded   EventType = "payment_intent.succeeded"
	EventPaymentIntentFailed      EventType = "payment_intent.payment_failed"
	EventRefundCreated            EventType = "refund.created"
	EventRefundUpdated            EventType = "refund.updated"
	EventRefundFailed             EventType = "refund.failed"
)

// Family groups event types that share a queue.
type Family string

const (
	FamilyCheckout Family = "checkout"
	FamilyPayment  Family = "payment"
	FamilyRefund   Family = "refund"
)

var eventFamilies = map[EventType]Family{
	EventCheckoutSessionCompleted: FamilyCheckout,
	EventCheckoutSessionExpired:   FamilyCheckout,
	EventPaymentIntentSucceeded:   FamilyPayment,
	EventPaymentIntentFailed:      FamilyPayment,
	EventRefundCreated:            FamilyRefund,
	EventRefundUpdated:            FamilyRefund,
	EventRefundFailed:             FamilyRefund,
}

func (t EventType) IsKnown() bool {
	_, ok := eventFamilies[t]
	return ok
}

func (t EventType) Family() (Family, bool) {
	f, ok := eventFamilies[t]
	return f, ok
}

// Job is one queued payment-provider event.
type Job struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	Attempts int             `json:"attempts"`

	mu   sync.Mutex
	logs []string
}

// Log appends a line to the job's execution log.
func (j *Job) Log(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
}

func (j *Job) Logs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.logs...)
}

// Result is the business outcome of handling one event. Expected rejections
// are reported here with Success false; only faults are returned as errors.
type Result struct {
	Success bool    `json:"success"`
	Log     *string `json:"log"`
}

// JobResult is a Result enriched with the notification recipient.
type JobResult struct {
	Result
	OrderID  string `json:"orderId,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	RefundID string `json:"refundId,omitempty"`
}
