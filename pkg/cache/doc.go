// Package cache implements the tiered cache engine used by the
// knowledge-mesh backend. Values are stored across up to three tiers
// (memory, disk, remote) ordered by latency; lookups probe the tiers in
// order and promote frequently read entries toward the memory tier.
//
// The Coordinator is the public entry point. Individual tiers are safe
// for concurrent use, enforce their own capacity bounds via pluggable
// eviction policies, and translate their own I/O failures into misses so the
// coordinator degrades rather than fails when a tier goes down.
package cache
