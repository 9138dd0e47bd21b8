package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTokenSetStore keeps token sets keyed by (organization, provider).
type MemoryTokenSetStore struct {
	mu      sync.RWMutex
	entries map[string]OAuthTokenSet
	nowFn   func() time.Time
}

func NewMemoryTokenSetStore() *MemoryTokenSetStore {
	return &MemoryTokenSetStore{
		entries: map[string]OAuthTokenSet{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryTokenSetStore) Upsert(_ context.Context, set OAuthTokenSet) (OAuthTokenSet, error) {
	if s == nil {
		return OAuthTokenSet{}, fmt.Errorf("core: token set store is not configured")
	}
	if err := validateTokenSet(set); err != nil {
		return OAuthTokenSet{}, err
	}
	key := tokenSetKey(set.OrganizationID, set.ProviderID)
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneTokenSet(set)
	stored.ProviderID = normalizeProviderID(set.ProviderID)
	if existing, ok := s.entries[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if strings.TrimSpace(stored.ID) == "" {
			stored.ID = uuid.NewString()
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.entries[key] = stored
	return cloneTokenSet(stored), nil
}

func (s *MemoryTokenSetStore) Swap(_ context.Context, current, next OAuthTokenSet) (OAuthTokenSet, error) {
	if s == nil {
		return OAuthTokenSet{}, fmt.Errorf("core: token set store is not configured")
	}
	if err := validateTokenSet(next); err != nil {
		return OAuthTokenSet{}, err
	}
	key := tokenSetKey(current.OrganizationID, current.ProviderID)
	if tokenSetKey(next.OrganizationID, next.ProviderID) != key {
		return OAuthTokenSet{}, fmt.Errorf("core: swap cannot move a token set to another connection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[key]
	if !ok {
		return OAuthTokenSet{}, ErrTokenSetNotFound
	}
	if existing.AccessTokenEncrypted != current.AccessTokenEncrypted {
		return OAuthTokenSet{}, ErrTokenSetChanged
	}
	stored := cloneTokenSet(next)
	stored.ProviderID = normalizeProviderID(next.ProviderID)
	stored.ID = existing.ID
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.nowFn()
	s.entries[key] = stored
	return cloneTokenSet(stored), nil
}

func (s *MemoryTokenSetStore) Get(_ context.Context, organizationID, providerID string) (OAuthTokenSet, error) {
	if s == nil {
		return OAuthTokenSet{}, fmt.Errorf("core: token set store is not configured")
	}
	s.mu.RLock()
	set, ok := s.entries[tokenSetKey(organizationID, providerID)]
	s.mu.RUnlock()
	if !ok {
		return OAuthTokenSet{}, ErrTokenSetNotFound
	}
	return cloneTokenSet(set), nil
}

func (s *MemoryTokenSetStore) Delete(_ context.Context, organizationID, providerID string) error {
	if s == nil {
		return fmt.Errorf("core: token set store is not configured")
	}
	key := tokenSetKey(organizationID, providerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrTokenSetNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryTokenSetStore) ListNotEncryptedWith(_ context.Context, keyID string, limit int) ([]OAuthTokenSet, error) {
	if s == nil {
		return nil, fmt.Errorf("core: token set store is not configured")
	}
	keyID = strings.TrimSpace(keyID)
	s.mu.RLock()
	out := make([]OAuthTokenSet, 0)
	for _, set := range s.entries {
		if set.EncryptionKeyID == keyID {
			continue
		}
		out = append(out, cloneTokenSet(set))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt) ||
			(out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func validateTokenSet(set OAuthTokenSet) error {
	if strings.TrimSpace(set.OrganizationID) == "" {
		return fmt.Errorf("core: token set organization id is required")
	}
	if strings.TrimSpace(set.ProviderID) == "" {
		return fmt.Errorf("core: token set provider id is required")
	}
	if strings.TrimSpace(set.AccessTokenEncrypted) == "" {
		return fmt.Errorf("core: token set access token is required")
	}
	if strings.TrimSpace(set.EncryptionKeyID) == "" {
		return fmt.Errorf("core: token set encryption key id is required")
	}
	return nil
}

func tokenSetKey(organizationID, providerID string) string {
	return strings.TrimSpace(organizationID) + "|" + normalizeProviderID(providerID)
}

var _ TokenSetStore = (*MemoryTokenSetStore)(nil)
