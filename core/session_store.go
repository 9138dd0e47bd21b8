package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SessionStore persists PKCE sessions between redirect and callback.
// Consume must be an atomic fetch-and-delete: it returns ErrSessionNotFound
// for unknown states and ErrSessionConsumed for states already consumed.
// Expiry is not checked by Consume; callers use PKCESession.IsValid.
type SessionStore interface {
	Save(ctx context.Context, session PKCESession) error
	Consume(ctx context.Context, state string) (PKCESession, error)
}

type MemorySessionStore struct {
	mu       sync.Mutex
	entries  map[string]PKCESession
	consumed *MemoryReplayLedger
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		entries:  map[string]PKCESession{},
		consumed: NewMemoryReplayLedger(defaultConsumedRetention),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session PKCESession) error {
	if s == nil {
		return fmt.Errorf("core: oauth session store is not configured")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	// keyed the same way Consume looks it up
	session.State = strings.TrimSpace(session.State)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[session.State]; exists || s.consumed.Seen(session.State) {
		return fmt.Errorf("core: oauth session state already in use")
	}
	s.entries[session.State] = clonePKCESession(session)
	return nil
}

func (s *MemorySessionStore) Consume(ctx context.Context, state string) (PKCESession, error) {
	if s == nil {
		return PKCESession{}, fmt.Errorf("core: oauth session store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return PKCESession{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.entries[state]
	if !ok {
		if s.consumed.Seen(state) {
			return PKCESession{}, ErrSessionConsumed
		}
		return PKCESession{}, ErrSessionNotFound
	}
	delete(s.entries, state)

	retention := time.Until(session.ExpiresAt) + defaultConsumedRetention
	if _, err := s.consumed.Claim(ctx, state, retention); err != nil {
		return PKCESession{}, err
	}
	return clonePKCESession(session), nil
}

// PurgeExpired drops sessions whose expiry has passed without a callback.
func (s *MemorySessionStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: oauth session store is not configured")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	purged := 0
	for state, session := range s.entries {
		if !session.IsValid(now) {
			delete(s.entries, state)
			purged++
		}
	}
	s.mu.Unlock()
	if _, err := s.consumed.PurgeExpired(ctx); err != nil {
		return purged, err
	}
	return purged, nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
