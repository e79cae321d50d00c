// Package eviction provides the pluggable eviction policies used by the
// bounded cache tiers. A policy only tracks key bookkeeping; the owning tier
// decides when to evict and performs the actual removal.
package eviction

import (
	"errors"
	"time"
)

// PolicyType identifies a supported eviction strategy
type PolicyType string

// Supported eviction strategies
const (
	// LRU evicts the key that has not been accessed for the longest time
	LRU PolicyType = "lru"
	// LFU evicts the key with the fewest accesses, ties broken by oldest insertion
	LFU PolicyType = "lfu"
	// TTL evicts an already-expired key, falling back to oldest insertion
	TTL PolicyType = "ttl"
)

// ErrUnknownPolicy is returned by New for an unrecognized policy type
var ErrUnknownPolicy = errors.New("unknown eviction policy")

// Policy is the contract every eviction strategy satisfies. Implementations
// are not safe for concurrent use on their own; the owning tier serializes
// calls under its own lock.
type Policy interface {
	// OnAccess is called whenever a tracked key is read
	OnAccess(key string)

	// OnInsert is called when a key is inserted or overwritten
	OnInsert(key string, size int64)

	// Candidate returns the key the policy would evict next. It reports
	// false when the policy tracks nothing; the tier then permits a
	// bounded one-entry overflow rather than rejecting the write.
	Candidate() (string, bool)

	// Remove drops a key from the policy's bookkeeping
	Remove(key string)

	// Len returns the number of tracked keys
	Len() int
}

// ExpiryAware is implemented by policies that rank candidates by expiry.
// Tiers that know entry expiries feed them in after OnInsert.
type ExpiryAware interface {
	SetExpiry(key string, expiresAt time.Time)
}

// ClockAware is implemented by policies that consult wall-clock time. Tiers
// with an injectable clock propagate it so expiry decisions stay consistent.
type ClockAware interface {
	SetClock(now func() time.Time)
}

// New creates an eviction policy. capacityHint sizes internal indexes and
// may be zero when the tier is bounded only by bytes.
func New(t PolicyType, capacityHint int) (Policy, error) {
	switch t {
	case LRU:
		return newLRU(capacityHint)
	case LFU:
		return newLFU(), nil
	case TTL:
		return newTTL(), nil
	default:
		return nil, ErrUnknownPolicy
	}
}

// Valid reports whether t names a supported policy
func (t PolicyType) Valid() bool {
	switch t {
	case LRU, LFU, TTL:
		return true
	}
	return false
}
