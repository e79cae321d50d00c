package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TierID identifies one backing store
type TierID string

// Tier identifiers, ordered by increasing latency
const (
	TierMemory TierID = "memory"
	TierDisk   TierID = "disk"
	TierRemote TierID = "remote"
)

// Entry is one physical copy of a cached value. Each tier owns its own
// copies independently; promotion materializes a fresh copy in a faster
// tier rather than sharing state across tiers.
type Entry struct {
	Key          Key       `json:"key"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentHash  string    `json:"content_hash"`
	Tier         TierID    `json:"tier"`
}

// NewEntry creates an entry for the given serialized payload. A zero ttl
// leaves ExpiresAt unset so that each tier applies its own default.
func NewEntry(key Key, payload []byte, ttl time.Duration, now time.Time) *Entry {
	e := &Entry{
		Key:          key,
		Payload:      payload,
		CreatedAt:    now,
		LastAccessed: now,
		SizeBytes:    int64(len(payload)),
		ContentHash:  contentHash(payload),
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// Expired reports whether the entry is past its expiry at the given time
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Touch records an access on this physical copy
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

// CloneFor returns an independent copy of the entry bound to the given tier.
// Access bookkeeping starts fresh; payload, creation time and expiry carry
// over unchanged.
func (e *Entry) CloneFor(tier TierID) *Entry {
	clone := &Entry{
		Key:          e.Key,
		Payload:      e.Payload,
		CreatedAt:    e.CreatedAt,
		ExpiresAt:    e.ExpiresAt,
		LastAccessed: e.LastAccessed,
		SizeBytes:    e.SizeBytes,
		ContentHash:  e.ContentHash,
		Tier:         tier,
	}
	return clone
}

func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
