package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-integrations/core"
)

const tokenSetCacheKeyPrefix = "go-integrations::token_set::v1"

// CachedTokenSetStore serves Get from a read-through cache and invalidates
// the entry on every write. Cached values hold ciphertext only.
type CachedTokenSetStore struct {
	base  core.TokenSetStore
	cache repositorycache.CacheService
}

func NewCachedTokenSetStore(
	base core.TokenSetStore,
	cacheService repositorycache.CacheService,
) (*CachedTokenSetStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base token set store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: token set cache service is required")
	}
	return &CachedTokenSetStore{base: base, cache: cacheService}, nil
}

// TokenSetCacheKey returns go-integrations::token_set::v1::<organization>::<provider>
// with each segment URL-path escaped.
func TokenSetCacheKey(organizationID, providerID string) (string, error) {
	organizationID = strings.TrimSpace(organizationID)
	providerID = normalizeProviderID(providerID)
	if organizationID == "" || providerID == "" {
		return "", fmt.Errorf("sqlstore: organization id and provider id are required")
	}
	return strings.Join([]string{
		tokenSetCacheKeyPrefix,
		url.PathEscape(organizationID),
		url.PathEscape(providerID),
	}, "::"), nil
}

func (s *CachedTokenSetStore) Get(ctx context.Context, organizationID, providerID string) (core.OAuthTokenSet, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: cached token set store is not configured")
	}
	cacheKey, err := TokenSetCacheKey(organizationID, providerID)
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	set, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.OAuthTokenSet, error) {
		return s.base.Get(ctx, organizationID, providerID)
	})
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	return cloneTokenSet(set), nil
}

func (s *CachedTokenSetStore) Upsert(ctx context.Context, set core.OAuthTokenSet) (core.OAuthTokenSet, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: cached token set store is not configured")
	}
	stored, err := s.base.Upsert(ctx, set)
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	if err := s.invalidate(ctx, stored.OrganizationID, stored.ProviderID); err != nil {
		return core.OAuthTokenSet{}, err
	}
	return stored, nil
}

// Swap invalidates the cached entry whatever the outcome, so a lost race
// is not served stale afterwards.
func (s *CachedTokenSetStore) Swap(ctx context.Context, current, next core.OAuthTokenSet) (core.OAuthTokenSet, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: cached token set store is not configured")
	}
	stored, err := s.base.Swap(ctx, current, next)
	if invalidateErr := s.invalidate(ctx, current.OrganizationID, current.ProviderID); err == nil {
		err = invalidateErr
	}
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	return stored, nil
}

func (s *CachedTokenSetStore) Delete(ctx context.Context, organizationID, providerID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached token set store is not configured")
	}
	if err := s.base.Delete(ctx, organizationID, providerID); err != nil {
		return err
	}
	return s.invalidate(ctx, organizationID, providerID)
}

func (s *CachedTokenSetStore) ListNotEncryptedWith(ctx context.Context, keyID string, limit int) ([]core.OAuthTokenSet, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached token set store is not configured")
	}
	return s.base.ListNotEncryptedWith(ctx, keyID, limit)
}

func (s *CachedTokenSetStore) invalidate(ctx context.Context, organizationID, providerID string) error {
	cacheKey, err := TokenSetCacheKey(organizationID, providerID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneTokenSet(set core.OAuthTokenSet) core.OAuthTokenSet {
	cloned := set
	cloned.Scopes = cloneStrings(set.Scopes)
	cloned.ExpiresAt = cloneTimePointer(set.ExpiresAt)
	return cloned
}
