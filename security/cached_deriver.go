package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const derivedKeyCacheKeyPrefix = "go-integrations::derived_key::v1::"

// CachedDeriver memoizes derived keys by sha256(master || salt). Each record
// has its own salt, so hits only occur when the same ciphertext is decrypted
// repeatedly.
type CachedDeriver struct {
	base  KeyDeriver
	cache repositorycache.CacheService

	mu     sync.Mutex
	keys   map[string]struct{}
	hits   atomic.Int64
	misses atomic.Int64
}

type DeriverCacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

func NewCachedDeriver(base KeyDeriver, cacheService repositorycache.CacheService) (*CachedDeriver, error) {
	if base == nil {
		base = PBKDF2Deriver{}
	}
	if cacheService == nil {
		return nil, fmt.Errorf("security: derived key cache service is required")
	}
	return &CachedDeriver{base: base, cache: cacheService, keys: map[string]struct{}{}}, nil
}

// NewDerivedKeyCacheService builds the in-process cache used by CachedDeriver.
func NewDerivedKeyCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

func (d *CachedDeriver) DeriveKey(master MasterKey, salt []byte) ([]byte, error) {
	if d == nil || d.cache == nil {
		return nil, fmt.Errorf("security: cached deriver is not configured")
	}
	cacheKey := derivedKeyCacheKey(master, salt)
	fetched := false
	key, err := repositorycache.GetOrFetch(context.Background(), d.cache, cacheKey, func(context.Context) ([]byte, error) {
		fetched = true
		return d.base.DeriveKey(master, salt)
	})
	if err != nil {
		return nil, err
	}
	if fetched {
		d.misses.Add(1)
		d.mu.Lock()
		d.keys[cacheKey] = struct{}{}
		d.mu.Unlock()
	} else {
		d.hits.Add(1)
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

// Clear evicts every derived key this deriver has cached.
func (d *CachedDeriver) Clear(ctx context.Context) error {
	if d == nil || d.cache == nil {
		return nil
	}
	d.mu.Lock()
	keys := d.keys
	d.keys = map[string]struct{}{}
	d.mu.Unlock()
	for key := range keys {
		if err := d.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (d *CachedDeriver) Stats() DeriverCacheStats {
	if d == nil {
		return DeriverCacheStats{}
	}
	d.mu.Lock()
	entries := len(d.keys)
	d.mu.Unlock()
	return DeriverCacheStats{Entries: entries, Hits: d.hits.Load(), Misses: d.misses.Load()}
}

func derivedKeyCacheKey(master MasterKey, salt []byte) string {
	hasher := sha256.New()
	hasher.Write(master.bytes[:])
	hasher.Write(salt)
	return derivedKeyCacheKeyPrefix + hex.EncodeToString(hasher.Sum(nil))
}

var _ KeyDeriver = (*CachedDeriver)(nil)
