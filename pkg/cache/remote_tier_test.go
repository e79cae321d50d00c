package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemoteTier(t *testing.T, mr *miniredis.Miniredis) *RemoteTier {
	t.Helper()
	tier, err := NewRemoteTier(RemoteConfig{
		Enabled:          true,
		Addr:             mr.Addr(),
		KeyPrefix:        "kmesh:cache:",
		OperationTimeout: time.Second,
		DialTimeout:      time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}

func TestRemoteTierGetSet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	key := mustKey(t, "documents", "doc-1", WithTags("project-alpha"))
	entry := NewEntry(key, []byte(`{"id":"doc-1"}`), time.Hour, time.Now())
	require.NoError(t, tier.Set(ctx, entry))

	got, err := tier.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, TierRemote, got.Tier)
	assert.Equal(t, int64(1), got.AccessCount)

	// Access bookkeeping is written back
	again, err := tier.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.AccessCount)

	_, err = tier.Get(ctx, mustKey(t, "documents", "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteTierBackendTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Minute, time.Now())))

	ttl := mr.TTL("kmesh:cache:" + key.Canonical())
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRemoteTierEmbeddedExpiry(t *testing.T) {
	// The envelope's own expiry holds even when the backend TTL lags
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	start := time.Now()
	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Minute, start)))

	tier.now = func() time.Time { return start.Add(2 * time.Minute) }

	_, err := tier.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("kmesh:cache:"+key.Canonical()))
}

func TestRemoteTierDelete(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Hour, time.Now())))

	removed, err := tier.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tier.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoteTierClearNamespace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	require.NoError(t, tier.Set(ctx, NewEntry(mustKey(t, "documents", "doc-1"), []byte("a"), time.Hour, time.Now())))
	require.NoError(t, tier.Set(ctx, NewEntry(mustKey(t, "search", "query-1"), []byte("b"), time.Hour, time.Now())))

	require.NoError(t, tier.Clear(ctx, "documents"))

	_, err := tier.Get(ctx, mustKey(t, "documents", "doc-1"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tier.Get(ctx, mustKey(t, "search", "query-1"))
	assert.NoError(t, err)
}

func TestRemoteTierClearNamespaceIsExact(t *testing.T) {
	// "doc" must not clear keys in the "documents" namespace
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	require.NoError(t, tier.Set(ctx, NewEntry(mustKey(t, "doc", "k1"), []byte("a"), time.Hour, time.Now())))
	require.NoError(t, tier.Set(ctx, NewEntry(mustKey(t, "documents", "k2"), []byte("b"), time.Hour, time.Now())))

	require.NoError(t, tier.Clear(ctx, "doc"))

	_, err := tier.Get(ctx, mustKey(t, "doc", "k1"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tier.Get(ctx, mustKey(t, "documents", "k2"))
	assert.NoError(t, err)
}

func TestRemoteTierOutageIsMissNotError(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Hour, time.Now())))

	mr.Close()

	// Reads degrade to misses, writes to no-ops
	_, err := tier.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Hour, time.Now())))

	removed, err := tier.Delete(ctx, key)
	assert.NoError(t, err)
	assert.False(t, removed)

	assert.Error(t, tier.Healthy(ctx))
	assert.Positive(t, tier.Stats().Errors)
}

func TestRemoteTierStartsDegradedWhenUnreachable(t *testing.T) {
	tier, err := NewRemoteTier(RemoteConfig{
		Enabled:          true,
		Addr:             "127.0.0.1:1", // nothing listens here
		OperationTimeout: 50 * time.Millisecond,
		DialTimeout:      100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tier.Close() })

	_, err = tier.Get(context.Background(), mustKey(t, "documents", "doc-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteTierRecoversAfterCooldown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	base := time.Now()
	tier.now = func() time.Time { return base }

	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, tier.Set(ctx, NewEntry(key, []byte("payload"), time.Hour, base)))

	mr.Close()
	_, err := tier.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Backend is back, but within the cooldown reads short-circuit to misses
	require.NoError(t, mr.Restart())
	_, err = tier.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	tier.now = func() time.Time { return base.Add(remoteRecheckCooldown + time.Second) }
	entry, err := tier.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), entry.Payload)
}

func TestRemoteTierCorruptEnvelope(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tier := newTestRemoteTier(t, mr)

	key := mustKey(t, "documents", "doc-1")
	require.NoError(t, mr.Set("kmesh:cache:"+key.Canonical(), "{not json"))

	_, err := tier.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	// The corrupt value was dropped
	assert.False(t, mr.Exists("kmesh:cache:"+key.Canonical()))
}
