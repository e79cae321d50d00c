package eviction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New(PolicyType("random"), 10)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestPolicyType_Valid(t *testing.T) {
	assert.True(t, LRU.Valid())
	assert.True(t, LFU.Valid())
	assert.True(t, TTL.Valid())
	assert.False(t, PolicyType("fifo").Valid())
}

func TestLRU_CandidateIsLeastRecentlyUsed(t *testing.T) {
	p, err := New(LRU, 10)
	require.NoError(t, err)

	p.OnInsert("a", 1)
	p.OnInsert("b", 1)
	p.OnInsert("c", 1)

	// Touch "a" so "b" becomes the oldest
	p.OnAccess("a")

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "b", key)

	p.Remove("b")
	key, ok = p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "c", key)
	assert.Equal(t, 2, p.Len())
}

func TestLRU_EmptyHasNoCandidate(t *testing.T) {
	p, err := New(LRU, 0)
	require.NoError(t, err)

	_, ok := p.Candidate()
	assert.False(t, ok)
}

func TestLFU_CandidateIsLeastFrequent(t *testing.T) {
	p, err := New(LFU, 10)
	require.NoError(t, err)

	p.OnInsert("hot", 1)
	p.OnInsert("cold", 1)

	p.OnAccess("hot")
	p.OnAccess("hot")

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "cold", key)
}

func TestLFU_TieBrokenByOldestInsertion(t *testing.T) {
	p, err := New(LFU, 10)
	require.NoError(t, err)

	p.OnInsert("first", 1)
	p.OnInsert("second", 1)

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "first", key)
}

func TestLFU_RemoveKeepsBookkeepingConsistent(t *testing.T) {
	p, err := New(LFU, 10)
	require.NoError(t, err)

	p.OnInsert("a", 1)
	p.OnInsert("b", 1)
	p.OnAccess("a")

	p.Remove("b")

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "a", key)
	assert.Equal(t, 1, p.Len())
}

func TestTTL_PrefersExpiredEntries(t *testing.T) {
	p := newTTL()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnInsert("fresh", 1)
	p.SetExpiry("fresh", now.Add(time.Hour))
	p.OnInsert("stale", 1)
	p.SetExpiry("stale", now.Add(-time.Minute))

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "stale", key)
}

func TestTTL_FallsBackToFIFO(t *testing.T) {
	p := newTTL()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnInsert("oldest", 1)
	p.SetExpiry("oldest", now.Add(time.Hour))
	p.OnInsert("newest", 1)
	p.SetExpiry("newest", now.Add(time.Hour))

	key, ok := p.Candidate()
	require.True(t, ok)
	assert.Equal(t, "oldest", key)
}

func TestTTL_RemoveUntrackedIsNoop(t *testing.T) {
	p := newTTL()
	p.Remove("missing")
	assert.Equal(t, 0, p.Len())
}
