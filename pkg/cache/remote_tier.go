package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

// remoteRecheckCooldown is how long a degraded backend is assumed down
// before an operation is allowed to probe it again. Healthy() always pings.
const remoteRecheckCooldown = 5 * time.Second

// remoteEnvelope is the JSON document stored per entry in the remote KV.
// Expiry is enforced both by the backend TTL and by the embedded ExpiresAt,
// so a backend with lagging expiry still never serves stale data.
type remoteEnvelope struct {
	Payload      []byte    `json:"payload"`
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

// RemoteTier adapts an external shared Redis-compatible KV into the slowest
// tier. Every call is bounded by the configured operation timeout and every
// network error is translated into a tier-local miss or no-op at this
// boundary, never surfaced: a remote outage degrades the system to slower
// but correct. A circuit breaker short-circuits a flapping backend to
// instant misses instead of paying the timeout on every request.
type RemoteTier struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	prefix  string

	timeout    time.Duration
	defaultTTL time.Duration

	counters tierCounters
	logger   observability.Logger
	now      func() time.Time

	mu              sync.RWMutex
	healthy         bool
	lastHealthCheck time.Time
}

// NewRemoteTier connects to the remote backend. Connection failure does not
// fail construction: the tier starts unhealthy and recovers when the
// backend does, mirroring the availability assumptions of the other tiers.
func NewRemoteTier(cfg RemoteConfig, logger observability.Logger) (*RemoteTier, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: remote tier requires an address", ErrInvalidConfig)
	}

	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultRemoteOperationTimeout
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultRemoteDialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	t := &RemoteTier{
		client:     client,
		prefix:     cfg.KeyPrefix,
		timeout:    timeout,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.WithPrefix("cache.remote"),
		now:        time.Now,
	}

	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-cache",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A miss is a normal outcome, not a backend failure
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("remote cache circuit breaker state change", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	// Initial ping with backoff; failure leaves the tier degraded, not broken
	ping := backoff.NewExponentialBackOff()
	ping.MaxElapsedTime = dialTimeout
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}, ping)
	if err != nil {
		t.logger.Warn("remote cache unreachable at startup, continuing degraded", map[string]interface{}{
			"addr":  cfg.Addr,
			"error": err.Error(),
		})
	} else {
		t.logger.Info("remote cache connected", map[string]interface{}{
			"addr": cfg.Addr,
			"db":   cfg.DB,
		})
	}
	t.healthy = err == nil
	t.lastHealthCheck = t.now()

	return t, nil
}

// ID implements Tier.ID
func (t *RemoteTier) ID() TierID { return TierRemote }

// Get implements Tier.Get. Backend and timeout errors surface as ErrNotFound.
func (t *RemoteTier) Get(ctx context.Context, key Key) (*Entry, error) {
	canonical := key.Canonical()
	now := t.now()

	if t.assumedDown() {
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	result, err := t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		return t.client.Get(opCtx, t.remoteKey(canonical)).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			t.counters.misses.Add(1)
			return nil, ErrNotFound
		}
		t.degrade("get", canonical, err)
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	var env remoteEnvelope
	if err := json.Unmarshal(result.([]byte), &env); err != nil {
		t.degrade("decode", canonical, err)
		t.counters.misses.Add(1)
		t.deleteQuietly(ctx, canonical)
		return nil, ErrNotFound
	}

	if !env.ExpiresAt.IsZero() && now.After(env.ExpiresAt) {
		t.deleteQuietly(ctx, canonical)
		t.counters.misses.Add(1)
		return nil, ErrNotFound
	}

	env.AccessCount++
	env.LastAccessed = now
	t.counters.hits.Add(1)

	// Write back access bookkeeping, keeping the backend TTL
	if raw, err := json.Marshal(&env); err == nil {
		_, _ = t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
			return nil, t.client.Set(opCtx, t.remoteKey(canonical), raw, redis.KeepTTL).Err()
		})
	}

	return &Entry{
		Key:          key,
		Payload:      env.Payload,
		CreatedAt:    env.CreatedAt,
		ExpiresAt:    env.ExpiresAt,
		AccessCount:  env.AccessCount,
		LastAccessed: env.LastAccessed,
		SizeBytes:    env.SizeBytes,
		ContentHash:  env.ContentHash,
		Tier:         TierRemote,
	}, nil
}

// Set implements Tier.Set. Failures are logged and swallowed; the remote
// tier is best-effort by contract.
func (t *RemoteTier) Set(ctx context.Context, entry *Entry) error {
	canonical := entry.Key.Canonical()
	now := t.now()

	if t.assumedDown() {
		return nil
	}

	stored := entry.CloneFor(TierRemote)
	if stored.ExpiresAt.IsZero() && t.defaultTTL > 0 {
		stored.ExpiresAt = now.Add(t.defaultTTL)
	}

	env := remoteEnvelope{
		Payload:      stored.Payload,
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
	raw, err := json.Marshal(&env)
	if err != nil {
		t.logger.Warn("failed to marshal remote cache envelope", map[string]interface{}{
			"key": canonical, "error": err.Error(),
		})
		return nil
	}

	ttl := time.Duration(0)
	if !stored.ExpiresAt.IsZero() {
		ttl = stored.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return nil
		}
	}

	_, err = t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		return nil, t.client.Set(opCtx, t.remoteKey(canonical), raw, ttl).Err()
	})
	if err != nil {
		t.degrade("set", canonical, err)
		return nil
	}

	t.counters.sets.Add(1)
	return nil
}

// Delete implements Tier.Delete; backend errors count as already gone
func (t *RemoteTier) Delete(ctx context.Context, key Key) (bool, error) {
	canonical := key.Canonical()

	if t.assumedDown() {
		return false, nil
	}

	result, err := t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		return t.client.Del(opCtx, t.remoteKey(canonical)).Result()
	})
	if err != nil {
		t.degrade("delete", canonical, err)
		return false, nil
	}

	removed := result.(int64) > 0
	if removed {
		t.counters.deletes.Add(1)
	}
	return removed, nil
}

// Exists reports whether the key is present, without touching bookkeeping
func (t *RemoteTier) Exists(ctx context.Context, key Key) bool {
	if t.assumedDown() {
		return false
	}

	result, err := t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		return t.client.Exists(opCtx, t.remoteKey(key.Canonical())).Result()
	})
	if err != nil {
		return false
	}
	return result.(int64) > 0
}

// Clear implements Tier.Clear by scanning the tier's key prefix
func (t *RemoteTier) Clear(ctx context.Context, namespace string) error {
	if t.assumedDown() {
		return nil
	}

	// Canonical keys are "{namespace}:{key}:...", so the separator must be
	// part of the pattern or "doc" would also match "documents".
	pattern := t.prefix + namespace + ":*"
	if namespace == "" {
		pattern = t.prefix + "*"
	}

	_, err := t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		iter := t.client.Scan(opCtx, 0, pattern, 100).Iterator()
		for iter.Next(opCtx) {
			if err := t.client.Del(opCtx, iter.Val()).Err(); err != nil {
				t.logger.Warn("failed to delete remote cache key", map[string]interface{}{
					"key": iter.Val(), "error": err.Error(),
				})
			}
		}
		return nil, iter.Err()
	})
	if err != nil {
		t.degrade("clear", pattern, err)
	}
	return nil
}

// Stats implements Tier.Stats. The remote backend is shared, so item count
// and byte usage are not tracked per process.
func (t *RemoteTier) Stats() TierStats {
	return t.counters.snapshot(TierRemote, 0, 0)
}

// Healthy implements Tier.Healthy with a bounded ping
func (t *RemoteTier) Healthy(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.client.Ping(opCtx).Err()

	t.mu.Lock()
	t.healthy = err == nil
	t.lastHealthCheck = t.now()
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("remote cache unreachable: %w", err)
	}
	return nil
}

// Close implements Tier.Close
func (t *RemoteTier) Close() error {
	return t.client.Close()
}

// assumedDown reports whether the backend is known degraded and the re-check
// cooldown has not yet elapsed. While it holds, operations short-circuit to
// misses and no-ops instead of paying the timeout on every request.
func (t *RemoteTier) assumedDown() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.healthy && t.now().Sub(t.lastHealthCheck) < remoteRecheckCooldown
}

// execute runs one backend operation under the circuit breaker and the
// per-operation timeout
func (t *RemoteTier) execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return op(opCtx)
	})
	if err == nil || errors.Is(err, redis.Nil) {
		t.mu.Lock()
		t.healthy = true
		t.mu.Unlock()
	}
	return result, err
}

// degrade records and logs a backend failure that was swallowed at the
// tier boundary
func (t *RemoteTier) degrade(op, key string, err error) {
	t.counters.errors.Add(1)
	t.mu.Lock()
	t.healthy = false
	t.lastHealthCheck = t.now()
	t.mu.Unlock()
	t.logger.Warn("remote cache operation degraded", map[string]interface{}{
		"op":    op,
		"key":   key,
		"error": err.Error(),
	})
}

func (t *RemoteTier) deleteQuietly(ctx context.Context, canonical string) {
	_, _ = t.execute(ctx, func(opCtx context.Context) (interface{}, error) {
		return nil, t.client.Del(opCtx, t.remoteKey(canonical)).Err()
	})
}

func (t *RemoteTier) remoteKey(canonical string) string {
	return t.prefix + canonical
}
