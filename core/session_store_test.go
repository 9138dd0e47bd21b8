package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newStoredSession(t *testing.T, store *MemorySessionStore) PKCESession {
	t.Helper()
	session, err := NewPKCESession("slack", "https://app.example/callback", time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return session
}

func TestMemorySessionStore_ConsumeOnce(t *testing.T) {
	store := NewMemorySessionStore()
	session := newStoredSession(t, store)

	consumed, err := store.Consume(context.Background(), session.State)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.CodeVerifier != session.CodeVerifier {
		t.Fatalf("expected stored verifier to round trip")
	}

	if _, err := store.Consume(context.Background(), session.State); !errors.Is(err, ErrSessionConsumed) {
		t.Fatalf("expected ErrSessionConsumed on replay, got %v", err)
	}
}

func TestMemorySessionStore_UnknownStateIsNotFound(t *testing.T) {
	store := NewMemorySessionStore()
	if _, err := store.Consume(context.Background(), "unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Consume(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty state, got %v", err)
	}
}

func TestMemorySessionStore_RejectsReusedState(t *testing.T) {
	store := NewMemorySessionStore()
	session := newStoredSession(t, store)

	if err := store.Save(context.Background(), session); err == nil {
		t.Fatalf("expected duplicate state to be rejected")
	}
	if _, err := store.Consume(context.Background(), session.State); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.Save(context.Background(), session); err == nil {
		t.Fatalf("expected consumed state to stay unusable")
	}
}

func TestMemorySessionStore_PaddedStateRoundTrips(t *testing.T) {
	store := NewMemorySessionStore()
	session, err := NewPKCESession("slack", "https://app.example/callback", time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	bare := session.State
	session.State = "  " + bare + "\n"
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	consumed, err := store.Consume(context.Background(), bare)
	if err != nil {
		t.Fatalf("expected padded state to be consumable by its trimmed value, got %v", err)
	}
	if consumed.State != bare {
		t.Fatalf("expected stored state to be trimmed, got %q", consumed.State)
	}

	session.State = bare
	if err := store.Save(context.Background(), session); err == nil {
		t.Fatalf("expected trimmed duplicate of a consumed state to be rejected")
	}
}

func TestMemorySessionStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewMemorySessionStore()
	session := newStoredSession(t, store)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		replays   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(context.Background(), session.State)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSessionConsumed):
				replays++
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", successes)
	}
	if replays != workers-1 {
		t.Fatalf("expected %d replay rejections, got %d", workers-1, replays)
	}
}

func TestMemorySessionStore_PurgeExpired(t *testing.T) {
	store := NewMemorySessionStore()
	past := time.Now().UTC().Add(-time.Hour)
	expired, err := newPKCESessionAt("slack", "https://app.example/callback", time.Minute, past)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := store.Save(context.Background(), expired); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	live := newStoredSession(t, store)

	purged, err := store.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged session, got %d", purged)
	}
	if _, err := store.Consume(context.Background(), expired.State); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected purged session to be gone, got %v", err)
	}
	if _, err := store.Consume(context.Background(), live.State); err != nil {
		t.Fatalf("expected live session to remain, got %v", err)
	}
}
