package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCredentialLocker_SerializesPerKey(t *testing.T) {
	locker := NewMemoryCredentialLocker()
	handle, err := locker.Acquire(context.Background(), "org_1|slack", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(context.Background(), "org_1|slack", time.Minute); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected second acquire to fail, got %v", err)
	}
	other, err := locker.Acquire(context.Background(), "org_1|google", time.Minute)
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	_ = other.Unlock(context.Background())

	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(context.Background(), "org_1|slack", time.Minute); err != nil {
		t.Fatalf("expected reacquire after unlock, got %v", err)
	}
}

func TestMemoryCredentialLocker_ExpiredLockIsReclaimed(t *testing.T) {
	locker := NewMemoryCredentialLocker()
	now := time.Now().UTC()
	locker.nowFn = func() time.Time { return now }
	stale, err := locker.Acquire(context.Background(), "org_1|slack", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	now = now.Add(2 * time.Second)
	fresh, err := locker.Acquire(context.Background(), "org_1|slack", time.Minute)
	if err != nil {
		t.Fatalf("expected expired lock to be reclaimed, got %v", err)
	}
	_ = stale.Unlock(context.Background())
	_ = fresh.Unlock(context.Background())
}

func TestService_RefreshInFlightIsConflict(t *testing.T) {
	provider := &testProvider{id: "slack"}
	locker := NewMemoryCredentialLocker()
	svc, err := newTestService(provider, WithCredentialLocker(locker))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	seedTokenSet(t, svc.tokenSetStore, "org_1", "slack", DefaultEncryptionKeyID)

	handle, err := locker.Acquire(context.Background(), tokenSetKey("org_1", "slack"), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer handle.Unlock(context.Background())

	_, err = svc.Refresh(context.Background(), RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"})
	if err == nil {
		t.Fatalf("expected refresh to fail while locked")
	}
	if provider.refreshCalls != 0 {
		t.Fatalf("expected no provider call while another refresh holds the lock")
	}
	if !isRetryableJobError(err) {
		t.Fatalf("expected in-flight refresh to be retryable, got %v", err)
	}
}
