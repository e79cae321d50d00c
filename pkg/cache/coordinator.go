package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

// SetOption customizes a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	ttl     time.Duration
	keyOpts []KeyOption
}

// WithTTL overrides every tier's default TTL for this entry
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WithKeyTags attaches invalidation tags to the entry being written
func WithKeyTags(tags ...string) SetOption {
	return func(o *setOptions) { o.keyOpts = append(o.keyOpts, WithTags(tags...)) }
}

// WithKeyVersion overrides the default key version for the entry
func WithKeyVersion(version string) SetOption {
	return func(o *setOptions) { o.keyOpts = append(o.keyOpts, WithVersion(version)) }
}

// Coordinator orchestrates lookups across the configured tiers in priority
// order (memory, disk, remote), promotes frequently read entries toward the
// memory tier, maintains the tag reverse index for bulk invalidation, and
// aggregates statistics. It is the public API of the cache engine and is
// safe for concurrent use.
type Coordinator struct {
	config Config
	codec  *Codec

	memory *MemoryTier
	disk   *DiskTier
	remote *RemoteTier
	tiers  []Tier // probe order, enabled tiers only

	// tag -> canonical -> key, coordinator-owned, guarded by tagMu
	tagMu    sync.Mutex
	tagIndex map[string]map[string]Key

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	compressionCount   atomic.Int64
	compressionSaved   atomic.Int64

	// EWMA of coordinator-level op latency, guarded by respMu
	respMu       sync.Mutex
	responseEWMA float64

	id      string
	logger  observability.Logger
	metrics observability.MetricsClient

	sweepCancel context.CancelFunc
	now         func() time.Time
}

// NewCoordinator validates the configuration, constructs the enabled tiers
// and starts the optional expiry sweeper. Configuration errors are fatal;
// nothing else is.
func NewCoordinator(cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Coordinator, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := NewCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c := &Coordinator{
		config:   cfg,
		codec:    codec,
		tagIndex: make(map[string]map[string]Key),
		id:       uuid.NewString(),
		logger:   logger.WithPrefix("cache.coordinator"),
		metrics:  metrics,
		now:      time.Now,
	}

	memory, err := NewMemoryTier(cfg.Memory, logger, metrics)
	if err != nil {
		return nil, err
	}
	c.memory = memory
	c.tiers = append(c.tiers, memory)

	if cfg.Disk.Enabled {
		disk, err := NewDiskTier(cfg.Disk, logger, metrics)
		if err != nil {
			return nil, err
		}
		c.disk = disk
		c.tiers = append(c.tiers, disk)

		// Entries that survived a restart keep their tags in the disk
		// sidecars; fold them back into the tag index so invalidation
		// still reaches them.
		for _, key := range disk.Keys() {
			c.indexTags(key)
		}
	}

	if cfg.Remote.Enabled {
		remote, err := NewRemoteTier(cfg.Remote, logger)
		if err != nil {
			return nil, err
		}
		c.remote = remote
		c.tiers = append(c.tiers, remote)
	}

	if cfg.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		c.sweepCancel = cancel
		sweeper := NewSweeper(c, cfg.SweepInterval, logger)
		go sweeper.Run(sweepCtx)
	}

	c.logger.Info("cache coordinator initialized", map[string]interface{}{
		"id":                  c.id,
		"tiers":               len(c.tiers),
		"promotion_threshold": cfg.PromotionThreshold,
	})

	return c, nil
}

// Get probes the tiers in priority order and decodes the first hit into
// value, which must be a pointer. Absence is not an error: the only error a
// lookup can produce is a deserialization failure on a found entry, which
// surfaces because it indicates a contract violation rather than a miss.
func (c *Coordinator) Get(ctx context.Context, namespace, name string, value interface{}, opts ...KeyOption) (bool, error) {
	key, err := NewKey(namespace, name, opts...)
	if err != nil {
		return false, err
	}

	start := c.now()
	c.totalRequests.Add(1)

	for _, tier := range c.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				// Tier-local failure: skip the tier, keep probing
				c.logger.Warn("tier lookup failed, continuing", map[string]interface{}{
					"tier":  string(tier.ID()),
					"key":   key.Canonical(),
					"error": err.Error(),
				})
			}
			continue
		}

		if err := c.codec.Decode(entry.Payload, value); err != nil {
			c.observeLatency("get", start, false)
			return false, err
		}

		c.successfulRequests.Add(1)
		c.observeLatency("get", start, true)

		if tier.ID() != TierMemory && entry.AccessCount >= int64(c.config.PromotionThreshold) {
			c.promote(ctx, entry)
		}

		return true, nil
	}

	c.observeLatency("get", start, false)
	return false, nil
}

// Set serializes the value and writes it through the tiers. Memory and disk
// are written synchronously and at least one of them must succeed; the
// remote tier is best-effort by contract. A caller-supplied TTL wins over
// the per-tier defaults.
func (c *Coordinator) Set(ctx context.Context, namespace, name string, value interface{}, opts ...SetOption) error {
	options := setOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	key, err := NewKey(namespace, name, options.keyOpts...)
	if err != nil {
		return err
	}

	payload, saved, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	if saved > 0 {
		c.compressionCount.Add(1)
		c.compressionSaved.Add(int64(saved))
	}

	start := c.now()
	entry := NewEntry(key, payload, options.ttl, start)

	var persisted bool
	if err := c.memory.Set(ctx, entry); err != nil {
		c.logger.Warn("memory tier write failed", map[string]interface{}{
			"key": key.Canonical(), "error": err.Error(),
		})
	} else {
		persisted = true
	}

	if c.disk != nil {
		if err := c.disk.Set(ctx, entry); err != nil {
			c.logger.Warn("disk tier write failed", map[string]interface{}{
				"key": key.Canonical(), "error": err.Error(),
			})
		} else {
			persisted = true
		}
	}

	if c.remote != nil {
		// Remote failures never affect the outcome
		_ = c.remote.Set(ctx, entry)
	}

	if !persisted {
		c.observeLatency("set", start, false)
		return ErrAllTiersFailed
	}

	c.indexTags(key)
	c.observeLatency("set", start, true)
	return nil
}

// Delete removes the key from every tier. It reports whether any tier held
// the key; deleting an absent key is not an error, and deleting twice never
// errors the second time.
func (c *Coordinator) Delete(ctx context.Context, namespace, name string, opts ...KeyOption) bool {
	key, err := NewKey(namespace, name, opts...)
	if err != nil {
		return false
	}
	return c.deleteKey(ctx, key)
}

// Clear empties the given namespace in every tier, or everything when
// namespace is empty.
func (c *Coordinator) Clear(ctx context.Context, namespace string) error {
	for _, tier := range c.tiers {
		if err := tier.Clear(ctx, namespace); err != nil {
			c.logger.Warn("tier clear failed", map[string]interface{}{
				"tier": string(tier.ID()), "error": err.Error(),
			})
		}
	}

	c.tagMu.Lock()
	if namespace == "" {
		c.tagIndex = make(map[string]map[string]Key)
	} else {
		for tag, keys := range c.tagIndex {
			for canonical, key := range keys {
				if key.Namespace() == namespace {
					delete(keys, canonical)
				}
			}
			if len(keys) == 0 {
				delete(c.tagIndex, tag)
			}
		}
	}
	c.tagMu.Unlock()

	return nil
}

// InvalidateByTags deletes every key carrying any of the given tags from
// every tier and returns the number of keys removed.
func (c *Coordinator) InvalidateByTags(ctx context.Context, tags ...string) int {
	targets := make(map[string]Key)

	c.tagMu.Lock()
	for _, tag := range tags {
		for canonical, key := range c.tagIndex[tag] {
			targets[canonical] = key
		}
	}
	c.tagMu.Unlock()

	removed := 0
	for _, key := range targets {
		if c.deleteKey(ctx, key) {
			removed++
		}
	}

	c.logger.Info("tag invalidation complete", map[string]interface{}{
		"tags":    tags,
		"removed": removed,
	})
	return removed
}

// WarmKeys reads the given keys through the coordinator so hot entries get
// pulled toward the memory tier. Returns the number of keys found.
func (c *Coordinator) WarmKeys(ctx context.Context, keys []Key) int {
	warmed := 0
	for _, key := range keys {
		var sink interface{}
		found, err := c.Get(ctx, key.Namespace(), key.Name(), &sink,
			WithVersion(key.Version()), WithTags(key.Tags()...))
		if err == nil && found {
			warmed++
		}
	}
	c.logger.Info("cache warming complete", map[string]interface{}{
		"total":  len(keys),
		"warmed": warmed,
	})
	return warmed
}

// Stats returns coordinator-level aggregates alongside per-tier snapshots
func (c *Coordinator) Stats() Stats {
	stats := Stats{
		TotalRequests:         c.totalRequests.Load(),
		SuccessfulRequests:    c.successfulRequests.Load(),
		CompressionCount:      c.compressionCount.Load(),
		CompressionSavedBytes: c.compressionSaved.Load(),
		Tiers:                 make(map[TierID]TierStats, len(c.tiers)),
	}
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	stats.AvgResponseTimeMS = c.avgResponseTimeMS()

	for _, tier := range c.tiers {
		snapshot := tier.Stats()
		stats.Tiers[tier.ID()] = snapshot
		stats.Hits += snapshot.Hits
		stats.Misses += snapshot.Misses
		stats.Sets += snapshot.Sets
		stats.Deletes += snapshot.Deletes
		stats.Evictions += snapshot.Evictions
	}

	return stats
}

// Close stops the sweeper and closes every tier
func (c *Coordinator) Close() error {
	if c.sweepCancel != nil {
		c.sweepCancel()
	}

	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// deleteKey removes one key from every tier and the tag index
func (c *Coordinator) deleteKey(ctx context.Context, key Key) bool {
	removed := false
	for _, tier := range c.tiers {
		ok, err := tier.Delete(ctx, key)
		if err != nil {
			c.logger.Warn("tier delete failed", map[string]interface{}{
				"tier": string(tier.ID()), "key": key.Canonical(), "error": err.Error(),
			})
			continue
		}
		removed = removed || ok
	}

	c.unindexTags(key)
	return removed
}

// promote writes a copy of a slower-tier entry into the memory tier.
// Promotion failure is logged, never surfaced.
func (c *Coordinator) promote(ctx context.Context, entry *Entry) {
	if err := c.memory.Set(ctx, entry); err != nil {
		c.logger.Warn("promotion to memory tier failed", map[string]interface{}{
			"key":   entry.Key.Canonical(),
			"from":  string(entry.Tier),
			"error": err.Error(),
		})
		return
	}

	c.metrics.IncrementCounterWithLabels("cache_promotions_total", 1, map[string]string{
		"from": string(entry.Tier),
	})
	c.logger.Debug("entry promoted to memory tier", map[string]interface{}{
		"key":          entry.Key.Canonical(),
		"from":         string(entry.Tier),
		"access_count": entry.AccessCount,
	})
}

func (c *Coordinator) indexTags(key Key) {
	tags := key.Tags()
	if len(tags) == 0 {
		return
	}

	c.tagMu.Lock()
	defer c.tagMu.Unlock()
	for _, tag := range tags {
		if c.tagIndex[tag] == nil {
			c.tagIndex[tag] = make(map[string]Key)
		}
		c.tagIndex[tag][key.Canonical()] = key
	}
}

func (c *Coordinator) unindexTags(key Key) {
	tags := key.Tags()
	if len(tags) == 0 {
		return
	}

	c.tagMu.Lock()
	defer c.tagMu.Unlock()
	for _, tag := range tags {
		delete(c.tagIndex[tag], key.Canonical())
		if len(c.tagIndex[tag]) == 0 {
			delete(c.tagIndex, tag)
		}
	}
}

// observeLatency folds one operation into the EWMA and emits metrics
func (c *Coordinator) observeLatency(operation string, start time.Time, hit bool) {
	elapsed := c.now().Sub(start)

	c.respMu.Lock()
	const alpha = 0.2
	ms := float64(elapsed.Microseconds()) / 1000.0
	if c.responseEWMA == 0 {
		c.responseEWMA = ms
	} else {
		c.responseEWMA = alpha*ms + (1-alpha)*c.responseEWMA
	}
	c.respMu.Unlock()

	c.metrics.RecordCacheOperation(operation, hit, elapsed)
}

// avgResponseTimeMS returns the smoothed coordinator-level latency
func (c *Coordinator) avgResponseTimeMS() float64 {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	return c.responseEWMA
}
