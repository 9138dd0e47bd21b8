package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultRefreshLockTTL = 30 * time.Second
	lockPollInterval      = 50 * time.Millisecond
)

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// CredentialLocker serializes refreshes of one (organization, provider)
// credential.
type CredentialLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

var ErrRefreshInProgress = errors.New("core: refresh already in progress")

type MemoryCredentialLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryCredentialLocker() *MemoryCredentialLocker {
	return &MemoryCredentialLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryCredentialLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: credential locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, ErrRefreshInProgress
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryCredentialLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}

// awaitCredentialLock blocks until key is free or the lock TTL has elapsed.
// Refresh fails fast on a held lock; writers that must not be skipped wait.
func awaitCredentialLock(ctx context.Context, locker CredentialLocker, key string) (LockHandle, error) {
	return backoff.Retry(ctx, func() (LockHandle, error) {
		lock, err := locker.Acquire(ctx, key, defaultRefreshLockTTL)
		if errors.Is(err, ErrRefreshInProgress) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return lock, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(lockPollInterval)),
		backoff.WithMaxElapsedTime(defaultRefreshLockTTL),
	)
}

var _ CredentialLocker = (*MemoryCredentialLocker)(nil)
