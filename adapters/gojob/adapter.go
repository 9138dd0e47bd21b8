package gojob

import (
	"context"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDRefresh    = core.JobIDRefresh
	JobIDRotateKeys = core.JobIDRotateKeys
)

// RetryPolicy bounds how often a failed credential job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultRetryPolicy retries a refresh or rotation a handful of times before
// parking it in the dead letter queue.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: 5 * time.Minute, DeadLetterOnMax: true}
}

func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// NormalizeAttempt clamps nack options to the policy. Attempt is 1-based.
// Anything short of a dead letter is requeued.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	delay := max(opts.Delay, 0)
	if p.MaxDelay > 0 {
		delay = min(delay, p.MaxDelay)
	}
	deadLetter := opts.DeadLetter || (p.exhausted(attempt) && p.DeadLetterOnMax)
	return core.JobNackOptions{
		Delay:      delay,
		Requeue:    !deadLetter,
		DeadLetter: deadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
}

func unconfigured(part string) error {
	return goerrors.New("gojob: "+part+" is not configured", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal).
		WithMetadata(map[string]any{"component": part})
}

// validateCredentialJob rejects messages the credential worker would only
// dead letter.
func validateCredentialJob(msg *core.JobExecutionMessage) error {
	if msg == nil {
		return goerrors.New("gojob: execution message is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	switch id := strings.TrimSpace(msg.JobID); id {
	case JobIDRefresh, JobIDRotateKeys:
		return nil
	default:
		return goerrors.New("gojob: unsupported credential job", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput).
			WithMetadata(map[string]any{"job_id": id})
	}
}

// encodeJob maps a credential job onto the go-job wire message.
func encodeJob(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     map[string]any{},
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return out
}

func decodeJob(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     make(map[string]any, len(msg.Parameters)),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return out
}

// EnqueuerAdapter publishes credential jobs to a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return unconfigured("enqueuer")
	}
	if err := validateCredentialJob(msg); err != nil {
		return err
	}
	return a.enqueuer.Enqueue(ctx, encodeJob(msg))
}

// DeliveryAdapter settles a go-job delivery under a RetryPolicy.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return decodeJob(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return unconfigured("delivery")
	}
	return d.delivery.Ack(ctx)
}

// WithAttempt returns a copy that reports attempt to the retry policy on
// Nack.
func (d *DeliveryAdapter) WithAttempt(attempt int) *DeliveryAdapter {
	if d == nil {
		return nil
	}
	next := *d
	next.attempt = attempt
	return &next
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, d.attempt)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return unconfigured("delivery")
	}
	settled := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      settled.Delay,
		Requeue:    settled.Requeue,
		DeadLetter: settled.DeadLetter,
		Reason:     settled.Reason,
	})
}

// DequeuerAdapter pulls credential jobs off a go-job queue. An empty queue
// yields a nil delivery and no error.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, unconfigured("dequeuer")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
)
