package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is an OAuth 2.0 authorization-code provider with PKCE support.
type Provider interface {
	ID() string
	DefaultScopes() []string
	AuthorizationURL(session PKCESession, scopes []string) (string, error)
	ExchangeCode(ctx context.Context, code string, session PKCESession) (ProviderTokens, error)
	Refresh(ctx context.Context, refreshToken string) (ProviderTokens, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

// TokenVault encrypts token material under the process master key.
type TokenVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
	KeyID() string
}

// KeyRotator re-encrypts a stored credential under a target key.
type KeyRotator interface {
	Rotate(encoded string) (string, error)
	TargetKeyID() string
}

// TokenSetStore persists sealed token sets. Swap replaces a stored set only
// while it still holds current's sealed access token, which every write
// re-seals; it returns ErrTokenSetNotFound when the set is gone and
// ErrTokenSetChanged when another write landed first.
type TokenSetStore interface {
	Upsert(ctx context.Context, set OAuthTokenSet) (OAuthTokenSet, error)
	Swap(ctx context.Context, current, next OAuthTokenSet) (OAuthTokenSet, error)
	Get(ctx context.Context, organizationID, providerID string) (OAuthTokenSet, error)
	Delete(ctx context.Context, organizationID, providerID string) error
	ListNotEncryptedWith(ctx context.Context, keyID string, limit int) ([]OAuthTokenSet, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
