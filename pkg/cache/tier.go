package cache

import "context"

// Tier is the contract every backing store honors. A tier owns its copies
// of entries, its capacity bounds, and its statistics. Misses are reported
// as ErrNotFound; tiers that talk to unreliable backends translate their
// own I/O failures rather than surfacing them here.
type Tier interface {
	ID() TierID

	// Get returns the tier's copy of the entry, with access bookkeeping
	// already updated. Expired entries are removed lazily and reported
	// as ErrNotFound.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores an independent copy of the entry, evicting as needed
	Set(ctx context.Context, entry *Entry) error

	// Delete removes the key. Idempotent: deleting an absent key reports
	// false with no error.
	Delete(ctx context.Context, key Key) (bool, error)

	// Clear removes every entry in the namespace, or everything when
	// namespace is empty
	Clear(ctx context.Context, namespace string) error

	// Stats returns a snapshot of the tier's counters
	Stats() TierStats

	// Healthy returns nil when the tier can serve traffic
	Healthy(ctx context.Context) error

	Close() error
}
