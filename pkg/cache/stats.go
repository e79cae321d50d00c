package cache

import "sync/atomic"

// TierStats is a point-in-time snapshot of one tier's counters
type TierStats struct {
	Tier      TierID `json:"tier"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Sets      int64  `json:"sets"`
	Deletes   int64  `json:"deletes"`
	Evictions int64  `json:"evictions"`
	Errors    int64  `json:"errors"`
	Items     int64  `json:"items"`
	SizeBytes int64  `json:"size_bytes"`
}

// HitRate returns the tier-local hit rate
func (s TierStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats aggregates coordinator-level counters with per-tier snapshots.
// TotalRequests/SuccessfulRequests reflect "any tier satisfied the request"
// and are independent of per-tier hit rates.
type Stats struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	HitRate            float64 `json:"hit_rate"`
	AvgResponseTimeMS  float64 `json:"avg_response_time_ms"`

	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`

	CompressionCount      int64 `json:"compression_count"`
	CompressionSavedBytes int64 `json:"compression_saved_bytes"`

	Tiers map[TierID]TierStats `json:"tiers"`
}

// tierCounters holds a tier's monotonic counters. Counters are atomic so
// read-mostly paths can bump them without holding the tier lock.
type tierCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

func (c *tierCounters) snapshot(tier TierID, items, sizeBytes int64) TierStats {
	return TierStats{
		Tier:      tier,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errors.Load(),
		Items:     items,
		SizeBytes: sizeBytes,
	}
}
