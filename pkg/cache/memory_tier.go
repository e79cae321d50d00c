package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache/eviction"
	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

// MemoryTier is the fastest, volatile tier: an in-process store bounded
// independently by byte size and item count. Every mutation runs under one
// coarse lock; operations never touch I/O so per-operation latency stays
// sub-microsecond at the target scale.
type MemoryTier struct {
	mu      sync.RWMutex
	items   map[string]*Entry
	policy  eviction.Policy
	expiry  eviction.ExpiryAware // non-nil when the policy ranks by expiry
	current int64

	maxBytes   int64
	maxItems   int
	defaultTTL time.Duration

	counters tierCounters
	logger   observability.Logger
	metrics  observability.MetricsClient
	now      func() time.Time
}

// NewMemoryTier creates a memory tier from its configuration
func NewMemoryTier(cfg TierConfig, logger observability.Logger, metrics observability.MetricsClient) (*MemoryTier, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	policy, err := eviction.New(cfg.EvictionPolicy, cfg.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("%w: memory tier: %v", ErrInvalidConfig, err)
	}

	t := &MemoryTier{
		items:      make(map[string]*Entry),
		policy:     policy,
		maxBytes:   cfg.MaxSizeBytes,
		maxItems:   cfg.MaxItems,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.WithPrefix("cache.memory"),
		metrics:    metrics,
		now:        time.Now,
	}
	if aware, ok := policy.(eviction.ExpiryAware); ok {
		t.expiry = aware
	}
	if aware, ok := policy.(eviction.ClockAware); ok {
		aware.SetClock(func() time.Time { return t.now() })
	}
	return t, nil
}

// ID implements Tier.ID
func (t *MemoryTier) ID() TierID { return TierMemory }

// Get implements Tier.Get with lazy expiry
func (t *MemoryTier) Get(ctx context.Context, key Key) (*Entry, error) {
	canonical := key.Canonical()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[canonical]
	if !ok {
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	if e.Expired(now) {
		t.removeLocked(canonical, e)
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	e.Touch(now)
	t.policy.OnAccess(canonical)
	t.counters.hits.Add(1)

	snapshot := *e
	return &snapshot, nil
}

// Set implements Tier.Set. Overwriting an existing key adjusts byte
// bookkeeping atomically so usage never drifts; eviction runs until both
// bounds hold, or until the policy has no candidate, in which case a
// one-entry overflow is permitted rather than dropping the write.
func (t *MemoryTier) Set(ctx context.Context, entry *Entry) error {
	canonical := entry.Key.Canonical()
	now := t.now()

	stored := entry.CloneFor(TierMemory)
	if stored.ExpiresAt.IsZero() && t.defaultTTL > 0 {
		stored.ExpiresAt = now.Add(t.defaultTTL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.items[canonical]; ok {
		t.removeLocked(canonical, old)
	}

	for t.overCapacityLocked(stored.SizeBytes) {
		victim, ok := t.policy.Candidate()
		if !ok {
			break
		}
		e, tracked := t.items[victim]
		if !tracked {
			// Policy bookkeeping drifted; drop it and continue
			t.policy.Remove(victim)
			continue
		}
		t.removeLocked(victim, e)
		t.recordEviction()
	}

	t.items[canonical] = stored
	t.current += stored.SizeBytes
	t.policy.OnInsert(canonical, stored.SizeBytes)
	if t.expiry != nil {
		t.expiry.SetExpiry(canonical, stored.ExpiresAt)
	}
	t.counters.sets.Add(1)

	return nil
}

// Delete implements Tier.Delete
func (t *MemoryTier) Delete(ctx context.Context, key Key) (bool, error) {
	canonical := key.Canonical()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[canonical]
	if !ok {
		return false, nil
	}
	t.removeLocked(canonical, e)
	t.counters.deletes.Add(1)
	return true, nil
}

// Clear implements Tier.Clear
func (t *MemoryTier) Clear(ctx context.Context, namespace string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if namespace == "" {
		for canonical := range t.items {
			t.policy.Remove(canonical)
		}
		t.items = make(map[string]*Entry)
		t.current = 0
		return nil
	}

	for canonical, e := range t.items {
		if e.Key.Namespace() == namespace {
			t.removeLocked(canonical, e)
		}
	}
	return nil
}

// SweepExpired removes every expired entry and returns the count removed.
// Used by the optional background sweeper; lazy expiry on Get does not
// depend on it.
func (t *MemoryTier) SweepExpired(ctx context.Context) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for canonical, e := range t.items {
		if e.Expired(now) {
			t.removeLocked(canonical, e)
			t.recordEviction()
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// SizeBytes returns the current byte usage
func (t *MemoryTier) SizeBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Stats implements Tier.Stats
func (t *MemoryTier) Stats() TierStats {
	t.mu.RLock()
	items := int64(len(t.items))
	size := t.current
	t.mu.RUnlock()
	return t.counters.snapshot(TierMemory, items, size)
}

// Healthy implements Tier.Healthy; the memory tier is always available
func (t *MemoryTier) Healthy(ctx context.Context) error { return nil }

// Close implements Tier.Close
func (t *MemoryTier) Close() error { return nil }

func (t *MemoryTier) overCapacityLocked(incoming int64) bool {
	if t.maxBytes > 0 && t.current+incoming > t.maxBytes {
		return true
	}
	if t.maxItems > 0 && len(t.items) >= t.maxItems {
		return true
	}
	return false
}

func (t *MemoryTier) recordEviction() {
	t.counters.evictions.Add(1)
	t.metrics.IncrementCounterWithLabels("cache_evictions_total", 1, map[string]string{
		"tier": string(TierMemory),
	})
}

// removeLocked drops an entry and its bookkeeping; caller holds the lock
func (t *MemoryTier) removeLocked(canonical string, e *Entry) {
	delete(t.items, canonical)
	t.current -= e.SizeBytes
	t.policy.Remove(canonical)
}
