package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	JobIDRefresh    = "integrations.refresh"
	JobIDRotateKeys = "integrations.rotate_keys"

	defaultJobRetryDelay = 30 * time.Second
)

func NewRefreshJobMessage(req RefreshRequest) (*JobExecutionMessage, error) {
	if err := validateConnectionKey(req.OrganizationID, req.ProviderID); err != nil {
		return nil, err
	}
	organizationID := strings.TrimSpace(req.OrganizationID)
	providerID := normalizeProviderID(req.ProviderID)
	return &JobExecutionMessage{
		JobID: JobIDRefresh,
		Parameters: map[string]any{
			"organization_id": organizationID,
			"provider_id":     providerID,
		},
		IdempotencyKey: JobIDRefresh + ":" + tokenSetKey(organizationID, providerID),
		DedupPolicy:    "drop",
	}, nil
}

func NewRotateKeysJobMessage(targetKeyID string, req RotateKeysRequest) *JobExecutionMessage {
	targetKeyID = strings.TrimSpace(targetKeyID)
	return &JobExecutionMessage{
		JobID: JobIDRotateKeys,
		Parameters: map[string]any{
			"target_key_id": targetKeyID,
			"batch_size":    req.BatchSize,
		},
		IdempotencyKey: JobIDRotateKeys + ":" + targetKeyID,
		DedupPolicy:    "drop",
	}
}

func (s *Service) EnqueueRefresh(ctx context.Context, req RefreshRequest) error {
	if s == nil || s.jobEnqueuer == nil {
		return NewInvalidConfigurationError("core: job enqueuer is not configured")
	}
	msg, err := NewRefreshJobMessage(req)
	if err != nil {
		return s.mapError(err)
	}
	return s.jobEnqueuer.Enqueue(ctx, msg)
}

func (s *Service) EnqueueRotateKeys(ctx context.Context, req RotateKeysRequest) error {
	if s == nil || s.jobEnqueuer == nil {
		return NewInvalidConfigurationError("core: job enqueuer is not configured")
	}
	if s.keyRotator == nil {
		return NewInvalidConfigurationError("core: key rotator is required")
	}
	return s.jobEnqueuer.Enqueue(ctx, NewRotateKeysJobMessage(s.keyRotator.TargetKeyID(), req))
}

// HandleJob runs one delivered job and acks or nacks it. Failures that a
// retry cannot fix are dead-lettered.
func (s *Service) HandleJob(ctx context.Context, delivery JobDelivery) error {
	if delivery == nil {
		return fmt.Errorf("core: job delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}

	var err error
	switch strings.TrimSpace(msg.JobID) {
	case JobIDRefresh:
		_, err = s.Refresh(ctx, RefreshRequest{
			OrganizationID: stringParam(msg.Parameters, "organization_id"),
			ProviderID:     stringParam(msg.Parameters, "provider_id"),
		})
	case JobIDRotateKeys:
		err = s.runRotateJob(ctx, msg)
	default:
		err = fmt.Errorf("core: unsupported job id %q", msg.JobID)
		if nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return nackErr
		}
		return err
	}

	if err == nil {
		return delivery.Ack(ctx)
	}
	opts := JobNackOptions{Requeue: true, Delay: defaultJobRetryDelay, Reason: err.Error()}
	if !isRetryableJobError(err) {
		opts = JobNackOptions{DeadLetter: true, Reason: err.Error()}
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return nackErr
	}
	return err
}

func (s *Service) runRotateJob(ctx context.Context, msg *JobExecutionMessage) error {
	if s.keyRotator == nil {
		return NewInvalidConfigurationError("core: key rotator is required")
	}
	target := stringParam(msg.Parameters, "target_key_id")
	if target != "" && target != s.keyRotator.TargetKeyID() {
		return NewInvalidConfigurationError(
			fmt.Sprintf("core: rotation job targets key %q but the active rotator targets %q", target, s.keyRotator.TargetKeyID()),
		)
	}
	result, err := s.RotateKeys(ctx, s.keyRotator, RotateKeysRequest{BatchSize: intParam(msg.Parameters, "batch_size")})
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("core: %d token sets failed to rotate", result.Failed)
	}
	return nil
}

// isRetryableJobError reports whether requeueing could change the outcome.
func isRetryableJobError(err error) bool {
	if _, ok := KindOf(err); ok {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryNotFound, goerrors.CategoryAuth:
			return false
		}
	}
	return true
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	switch value := params[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func intParam(params map[string]any, key string) int {
	if len(params) == 0 {
		return 0
	}
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
