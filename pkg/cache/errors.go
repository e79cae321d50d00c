package cache

import "errors"

var (
	// Key errors
	ErrInvalidKey = errors.New("invalid cache key")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrNotFound is the tier-level miss sentinel. Coordinator lookups
	// translate it into a plain "not found" result, never an error.
	ErrNotFound = errors.New("key not found in cache")

	// Serialization errors. These surface to callers: a cache that cannot
	// read back what it wrote must fail loudly.
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// ErrAllTiersFailed is returned by Set when no persistent tier
	// accepted the write.
	ErrAllTiersFailed = errors.New("all cache tiers failed")
)
