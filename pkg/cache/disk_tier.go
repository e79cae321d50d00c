package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache/eviction"
	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

const (
	valueFileExt = ".cache"
	metaFileExt  = ".meta"
)

// diskMeta is the JSON sidecar stored next to each value file. It carries
// enough to rebuild the in-memory index on startup and to answer TTL checks
// without reading the potentially large value file.
type diskMeta struct {
	Namespace    string    `json:"namespace"`
	Key          string    `json:"key"`
	Version      string    `json:"version"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentHash  string    `json:"content_hash"`
}

// DiskTier is the larger-capacity, best-effort-durable tier. Each entry maps
// to a value file and a metadata sidecar named by sha256 of the canonical
// key. A successful Set means the value file was written and synced before
// its sidecar, so a reader never observes a sidecar without its value; no
// transaction log protects against partial writes beyond that ordering.
type DiskTier struct {
	mu      sync.Mutex
	dir     string
	index   map[string]*diskMeta // canonical -> sidecar contents
	policy  eviction.Policy
	expiry  eviction.ExpiryAware
	current int64

	maxBytes   int64
	maxItems   int
	defaultTTL time.Duration

	counters tierCounters
	logger   observability.Logger
	metrics  observability.MetricsClient
	now      func() time.Time
}

// NewDiskTier creates a disk tier rooted at cfg.Path, creating the directory
// if needed and rebuilding the index from existing sidecars. Orphaned files
// (a sidecar without its value, or the reverse) are removed during the scan.
func NewDiskTier(cfg DiskConfig, logger observability.Logger, metrics observability.MetricsClient) (*DiskTier, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: disk tier requires a path", ErrInvalidConfig)
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cfg.Path, err)
	}

	policy, err := eviction.New(cfg.EvictionPolicy, cfg.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("%w: disk tier: %v", ErrInvalidConfig, err)
	}

	t := &DiskTier{
		dir:        cfg.Path,
		index:      make(map[string]*diskMeta),
		policy:     policy,
		maxBytes:   cfg.MaxSizeBytes,
		maxItems:   cfg.MaxItems,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.WithPrefix("cache.disk"),
		metrics:    metrics,
		now:        time.Now,
	}
	if aware, ok := policy.(eviction.ExpiryAware); ok {
		t.expiry = aware
	}
	if aware, ok := policy.(eviction.ClockAware); ok {
		aware.SetClock(func() time.Time { return t.now() })
	}

	if err := t.rebuildIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

// ID implements Tier.ID
func (t *DiskTier) ID() TierID { return TierDisk }

// Get implements Tier.Get. The sidecar answers the TTL check before the
// value file is read; expired entries are removed on first access.
func (t *DiskTier) Get(ctx context.Context, key Key) (*Entry, error) {
	canonical := key.Canonical()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	meta, ok := t.index[canonical]
	if !ok {
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
		t.removeFilesLocked(canonical, meta)
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	payload, err := os.ReadFile(t.valuePath(canonical))
	if err != nil {
		// Value file vanished or is unreadable; drop the entry so the
		// coordinator falls through to the next tier
		t.logger.Warn("failed to read cache value file", map[string]interface{}{
			"key":   canonical,
			"error": err.Error(),
		})
		t.removeFilesLocked(canonical, meta)
		t.counters.errors.Add(1)
		t.counters.misses.Add(1)
		return nil, fmt.Errorf("disk tier read failed: %w", err)
	}

	if contentHash(payload) != meta.ContentHash {
		t.logger.Warn("cache value failed integrity check", map[string]interface{}{
			"key": canonical,
		})
		t.removeFilesLocked(canonical, meta)
		t.counters.errors.Add(1)
		t.counters.misses.Add(1)
		return nil, fmt.Errorf("disk tier entry corrupt: %s", canonical)
	}

	meta.AccessCount++
	meta.LastAccessed = now
	t.policy.OnAccess(canonical)
	t.counters.hits.Add(1)

	// Persisting the access bookkeeping is best-effort
	if err := t.writeMeta(canonical, meta); err != nil {
		t.logger.Debug("failed to persist access metadata", map[string]interface{}{
			"key":   canonical,
			"error": err.Error(),
		})
	}

	return t.entryFromMeta(key, meta, payload), nil
}

// Set implements Tier.Set. The value file is written and synced before the
// sidecar; on sidecar failure the value file is removed again.
func (t *DiskTier) Set(ctx context.Context, entry *Entry) error {
	canonical := entry.Key.Canonical()
	now := t.now()

	stored := entry.CloneFor(TierDisk)
	if stored.ExpiresAt.IsZero() && t.defaultTTL > 0 {
		stored.ExpiresAt = now.Add(t.defaultTTL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.index[canonical]; ok {
		t.removeFilesLocked(canonical, old)
	}

	for t.overCapacityLocked(stored.SizeBytes) {
		victim, ok := t.policy.Candidate()
		if !ok {
			break
		}
		meta, tracked := t.index[victim]
		if !tracked {
			t.policy.Remove(victim)
			continue
		}
		t.removeFilesLocked(victim, meta)
		t.recordEviction()
	}

	if err := writeFileSync(t.valuePath(canonical), stored.Payload); err != nil {
		t.counters.errors.Add(1)
		return fmt.Errorf("disk tier write failed: %w", err)
	}

	meta := &diskMeta{
		Namespace:    entry.Key.Namespace(),
		Key:          entry.Key.Name(),
		Version:      entry.Key.Version(),
		Tags:         entry.Key.Tags(),
		CreatedAt:    stored.CreatedAt,
		ExpiresAt:    stored.ExpiresAt,
		LastAccessed: now,
		SizeBytes:    stored.SizeBytes,
		ContentHash:  stored.ContentHash,
	}
	if err := t.writeMeta(canonical, meta); err != nil {
		_ = os.Remove(t.valuePath(canonical))
		t.counters.errors.Add(1)
		return fmt.Errorf("disk tier metadata write failed: %w", err)
	}

	t.index[canonical] = meta
	t.current += meta.SizeBytes
	t.policy.OnInsert(canonical, meta.SizeBytes)
	if t.expiry != nil {
		t.expiry.SetExpiry(canonical, meta.ExpiresAt)
	}
	t.counters.sets.Add(1)

	return nil
}

// Delete implements Tier.Delete; already gone counts as success
func (t *DiskTier) Delete(ctx context.Context, key Key) (bool, error) {
	canonical := key.Canonical()

	t.mu.Lock()
	defer t.mu.Unlock()

	meta, ok := t.index[canonical]
	if !ok {
		return false, nil
	}
	t.removeFilesLocked(canonical, meta)
	t.counters.deletes.Add(1)
	return true, nil
}

// Clear implements Tier.Clear; only files managed by this tier are removed
func (t *DiskTier) Clear(ctx context.Context, namespace string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for canonical, meta := range t.index {
		if namespace != "" && meta.Namespace != namespace {
			continue
		}
		t.removeFilesLocked(canonical, meta)
	}
	return nil
}

// SweepExpired removes expired entries and returns the count removed
func (t *DiskTier) SweepExpired(ctx context.Context) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for canonical, meta := range t.index {
		if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
			t.removeFilesLocked(canonical, meta)
			t.recordEviction()
			removed++
		}
	}
	return removed
}

// Len returns the number of indexed entries
func (t *DiskTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// Keys returns the keys currently indexed, reconstructed from their
// sidecars. Used by the coordinator to rebuild tag bookkeeping after a
// restart.
func (t *DiskTier) Keys() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]Key, 0, len(t.index))
	for _, meta := range t.index {
		key, err := NewKey(meta.Namespace, meta.Key, WithVersion(meta.Version), WithTags(meta.Tags...))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Stats implements Tier.Stats
func (t *DiskTier) Stats() TierStats {
	t.mu.Lock()
	items := int64(len(t.index))
	size := t.current
	t.mu.Unlock()
	return t.counters.snapshot(TierDisk, items, size)
}

// Healthy implements Tier.Healthy by probing the cache directory
func (t *DiskTier) Healthy(ctx context.Context) error {
	info, err := os.Stat(t.dir)
	if err != nil {
		return fmt.Errorf("cache directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache path %s is not a directory", t.dir)
	}
	return nil
}

// Close implements Tier.Close
func (t *DiskTier) Close() error { return nil }

func (t *DiskTier) rebuildIndex() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}

	seen := make(map[string]bool)
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, metaFileExt) {
			continue
		}
		hash := strings.TrimSuffix(name, metaFileExt)
		seen[hash] = true

		metaPath := filepath.Join(t.dir, name)
		raw, err := os.ReadFile(metaPath)
		if err != nil {
			t.logger.Warn("dropping unreadable sidecar", map[string]interface{}{
				"file": name, "error": err.Error(),
			})
			_ = os.Remove(metaPath)
			continue
		}
		var meta diskMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			t.logger.Warn("dropping corrupt sidecar", map[string]interface{}{
				"file": name, "error": err.Error(),
			})
			_ = os.Remove(metaPath)
			_ = os.Remove(filepath.Join(t.dir, hash+valueFileExt))
			continue
		}
		if _, err := os.Stat(filepath.Join(t.dir, hash+valueFileExt)); err != nil {
			// Sidecar without its value
			_ = os.Remove(metaPath)
			continue
		}

		canonical := canonicalFromMeta(&meta)
		if canonical == "" {
			_ = os.Remove(metaPath)
			_ = os.Remove(filepath.Join(t.dir, hash+valueFileExt))
			continue
		}
		t.index[canonical] = &meta
		t.current += meta.SizeBytes
		t.policy.OnInsert(canonical, meta.SizeBytes)
		if t.expiry != nil {
			t.expiry.SetExpiry(canonical, meta.ExpiresAt)
		}
	}

	// Value files without a sidecar were never fully committed
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, valueFileExt) {
			continue
		}
		hash := strings.TrimSuffix(name, valueFileExt)
		if !seen[hash] {
			_ = os.Remove(filepath.Join(t.dir, name))
		}
	}

	return nil
}

func (t *DiskTier) overCapacityLocked(incoming int64) bool {
	if t.maxBytes > 0 && t.current+incoming > t.maxBytes {
		return true
	}
	if t.maxItems > 0 && len(t.index) >= t.maxItems {
		return true
	}
	return false
}

func (t *DiskTier) recordEviction() {
	t.counters.evictions.Add(1)
	t.metrics.IncrementCounterWithLabels("cache_evictions_total", 1, map[string]string{
		"tier": string(TierDisk),
	})
}

func (t *DiskTier) removeFilesLocked(canonical string, meta *diskMeta) {
	_ = os.Remove(t.valuePath(canonical))
	_ = os.Remove(t.metaPath(canonical))
	delete(t.index, canonical)
	t.current -= meta.SizeBytes
	t.policy.Remove(canonical)
}

func (t *DiskTier) writeMeta(canonical string, meta *diskMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeFileSync(t.metaPath(canonical), raw)
}

func (t *DiskTier) valuePath(canonical string) string {
	return filepath.Join(t.dir, fileHash(canonical)+valueFileExt)
}

func (t *DiskTier) metaPath(canonical string) string {
	return filepath.Join(t.dir, fileHash(canonical)+metaFileExt)
}

func (t *DiskTier) entryFromMeta(key Key, meta *diskMeta, payload []byte) *Entry {
	return &Entry{
		Key:          key,
		Payload:      payload,
		CreatedAt:    meta.CreatedAt,
		ExpiresAt:    meta.ExpiresAt,
		AccessCount:  meta.AccessCount,
		LastAccessed: meta.LastAccessed,
		SizeBytes:    meta.SizeBytes,
		ContentHash:  meta.ContentHash,
		Tier:         TierDisk,
	}
}

func canonicalFromMeta(meta *diskMeta) string {
	key, err := NewKey(meta.Namespace, meta.Key, WithVersion(meta.Version), WithTags(meta.Tags...))
	if err != nil {
		return ""
	}
	return key.Canonical()
}

// fileHash names on-disk files after the canonical key
func fileHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// writeFileSync writes data and syncs it to stable storage
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
