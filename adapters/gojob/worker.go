package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultIdleDelay = time.Second

// ErrNoDelivery is returned by RunOnce when the dequeuer had nothing ready.
var ErrNoDelivery = errors.New("gojob: no delivery available")

// JobHandler runs one delivery and settles it. core.Service satisfies it.
type JobHandler interface {
	HandleJob(ctx context.Context, delivery core.JobDelivery) error
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithIdleDelay sets the pause after a failed dequeue.
func WithIdleDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		if delay > 0 {
			w.idleDelay = delay
		}
	}
}

// Worker drains refresh and key rotation jobs from a dequeuer into a
// handler. Attempts are counted per idempotency key so the retry policy can
// dead-letter a job that keeps failing.
type Worker struct {
	dequeuer  core.JobDequeuer
	handler   JobHandler
	hook      core.JobWorkerHook
	logger    core.Logger
	idleDelay time.Duration
	now       func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewWorker(dequeuer core.JobDequeuer, handler JobHandler, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("gojob: job handler is required")
	}
	w := &Worker{
		dequeuer:  dequeuer,
		handler:   handler,
		idleDelay: defaultIdleDelay,
		now:       func() time.Time { return time.Now().UTC() },
		attempts:  map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.logger = glog.Ensure(w.logger)
	return w, nil
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.RunOnce(ctx)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var dequeueErr *dequeueError
		switch {
		case errors.Is(err, ErrNoDelivery):
		case errors.As(err, &dequeueErr):
			w.logger.Error("job dequeue failed", "cause", dequeueErr.Error())
		default:
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.idleDelay):
		}
	}
}

// RunOnce dequeues and handles a single delivery. A handler failure is
// returned after the delivery has been settled.
func (w *Worker) RunOnce(ctx context.Context) error {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &dequeueError{err: err}
	}
	if delivery == nil {
		return ErrNoDelivery
	}

	msg := delivery.Message()
	key := attemptKey(msg)
	attempt := w.nextAttempt(key)
	if adapter, ok := delivery.(*DeliveryAdapter); ok {
		delivery = adapter.WithAttempt(attempt)
	}

	startedAt := w.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	if attempt > 1 {
		w.emit(ctx, "retry", event)
	}
	w.emit(ctx, "start", event)

	handleErr := w.handler.HandleJob(ctx, delivery)
	event.Duration = w.now().Sub(startedAt)
	if handleErr == nil {
		w.clearAttempts(key)
		w.emit(ctx, "success", event)
		return nil
	}

	event.Err = handleErr
	w.logger.Error("credential job failed",
		"job_id", jobID(msg),
		"attempt", attempt,
		"cause", handleErr.Error(),
	)
	w.emit(ctx, "failure", event)
	return handleErr
}

func (w *Worker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) clearAttempts(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

// Attempts reports the failed attempts recorded for a job key.
func (w *Worker) Attempts(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[key]
}

func (w *Worker) emit(ctx context.Context, phase string, event core.JobWorkerEvent) {
	if w.hook == nil {
		return
	}
	switch phase {
	case "start":
		w.hook.OnStart(ctx, event)
	case "success":
		w.hook.OnSuccess(ctx, event)
	case "failure":
		w.hook.OnFailure(ctx, event)
	case "retry":
		w.hook.OnRetry(ctx, event)
	}
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func jobID(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}

type dequeueError struct {
	err error
}

func (e *dequeueError) Error() string {
	return "gojob: dequeue: " + e.err.Error()
}

func (e *dequeueError) Unwrap() error {
	return e.err
}
