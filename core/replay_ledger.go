package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultConsumedRetention = 15 * time.Minute
	defaultLedgerMaxEntries  = 8192
)

// MemoryReplayLedger remembers claimed keys until their retention elapses.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	retention  time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryReplayLedger(retention time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(retention, defaultLedgerMaxEntries)
}

func NewMemoryReplayLedgerWithLimits(retention time.Duration, maxEntries int) *MemoryReplayLedger {
	if retention <= 0 {
		retention = defaultConsumedRetention
	}
	if maxEntries <= 0 {
		maxEntries = defaultLedgerMaxEntries
	}
	return &MemoryReplayLedger{
		retention:  retention,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
	}
}

// Claim records key and returns false when it was already claimed.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.retention
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.entries[key]; ok && now.Before(until) {
		return false, nil
	}
	l.pruneLocked(now)
	for len(l.entries) >= l.maxEntries {
		l.evictSoonestLocked()
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryReplayLedger) Seen(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	now := l.now()
	l.mu.Lock()
	until, ok := l.entries[key]
	l.mu.Unlock()
	return ok && now.Before(until)
}

func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: replay ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now()), nil
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryReplayLedger) pruneLocked(now time.Time) int {
	pruned := 0
	for key, until := range l.entries {
		if !now.Before(until) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned
}

func (l *MemoryReplayLedger) evictSoonestLocked() {
	var soonestKey string
	var soonest time.Time
	for key, until := range l.entries {
		if soonestKey == "" || until.Before(soonest) {
			soonestKey = key
			soonest = until
		}
	}
	delete(l.entries, soonestKey)
}
