package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/notification"
)

type MailJobs interface {
	AddOrderMailJob(ctx context.Context, template notification.Template, payload notification.OrderMailPayload) error
}

var completionTemplates = map[EventType]notification.Template{
	EventCheckoutSessionCompleted: notification.TemplateOrderComplete,
	EventCheckoutSessionExpired:   notification.TemplateOrderExpired,
	EventPaymentIntentSucceeded:   notification.TemplatePaymentSucceeded,
	EventPaymentIntentFailed:      notification.TemplatePaymentFailed,
	EventRefundCreated:            notification.TemplateRefundCreated,
	EventRefundUpdated:            notification.TemplateRefundUpdated,
	EventRefundFailed:             notification.TemplateRefundFailed,
}

// QueueProcessor serves one family queue: it runs the shared Processor,
// enriches the result with the notification recipient and enqueues the
// completion mail.
type QueueProcessor struct {
	family    Family
	processor *Processor
	orders    orders.OrderService
	mailer    MailJobs
	tx        database.Transactor
	enrich    func(job *Job, result *JobResult)
	logger    *zap.Logger
}

type QueueProcessorDeps struct {
	Processor  *Processor
	Orders     orders.OrderService
	Mailer     MailJobs
	Transactor database.Transactor
	Logger     *zap.Logger
}

func newQueueProcessor(family Family, d QueueProcessorDeps, enrich func(*Job, *JobResult)) *QueueProcessor {
	return &QueueProcessor{
		family:    family,
		processor: d.Processor,
		orders:    d.Orders,
		mailer:    d.Mailer,
		tx:        d.Transactor,
		enrich:    enrich,
		logger:    d.Logger.With(zap.String("queue", string(family))),
	}
}

func NewCheckoutQueueProcessor(d QueueProcessorDeps) *QueueProcessor {
	return newQueueProcessor(FamilyCheckout, d, nil)
}

func NewPaymentQueueProcessor(d QueueProcessorDeps) *QueueProcessor {
	return newQueueProcessor(FamilyPayment, d, nil)
}

func NewRefundQueueProcessor(d QueueProcessorDeps) *QueueProcessor {
	return newQueueProcessor(FamilyRefund, d, func(job *Job, result *JobResult) {
		var refund struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(job.Data, &refund); err == nil {
			result.RefundID = refund.ID
		}
	})
}

func (q *QueueProcessor) Family() Family { return q.family }

// Run processes the job and enqueues its completion mail in one transaction.
func (q *QueueProcessor) Run(ctx context.Context, job *Job) (JobResult, error) {
	var result JobResult
	err := q.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if result, err = q.Process(ctx, job); err != nil {
			return err
		}
		return q.OnCompleted(ctx, job, result)
	})
	return result, err
}

// Process runs the job and attaches the post-transition order contact.
func (q *QueueProcessor) Process(ctx context.Context, job *Job) (JobResult, error) {
	if family, ok := EventType(job.Name).Family(); ok && family != q.family {
		q.logger.Warn("Webhook job delivered to the wrong queue",
			zap.String("job_id", job.ID),
			zap.String("event_type", job.Name),
			zap.String("event_family", string(family)))
		return JobResult{
			Result:  failed(fmt.Sprintf("Event %s belongs to the %s queue, not %s", job.Name, family, q.family)),
			OrderID: OrderID(job.Data),
		}, nil
	}

	res, err := q.processor.ProcessJob(ctx, job)
	if err != nil {
		return JobResult{}, err
	}

	result := JobResult{Result: res, OrderID: OrderID(job.Data)}
	if result.OrderID != "" {
		order, err := q.orders.GetOrder(ctx, result.OrderID)
		if err != nil {
			return JobResult{}, err
		}
		result.Username, result.Email = order.Contact()
	}
	if q.enrich != nil {
		q.enrich(job, &result)
	}
	return result, nil
}

// OnCompleted enqueues the mail mapped to the job's event. Unsuccessful results
// and unmapped events enqueue nothing.
func (q *QueueProcessor) OnCompleted(ctx context.Context, job *Job, result JobResult) error {
	if !result.Success {
		return nil
	}
	template, ok := completionTemplates[EventType(job.Name)]
	if !ok {
		q.logger.Debug("No notification mapped for event", zap.String("event_type", job.Name))
		return nil
	}
	return q.mailer.AddOrderMailJob(ctx, template, notification.OrderMailPayload{
		OrderID:  result.OrderID,
		Email:    result.Email,
		Username: result.Username,
		RefundID: result.RefundID,
	})
}
