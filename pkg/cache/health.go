package cache

import (
	"context"
	"time"
)

// HealthStatus classifies the availability of a tier or of the whole cache
type HealthStatus string

// Health states
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// TierHealth is one tier's health probe result
type TierHealth struct {
	Tier      TierID       `json:"tier"`
	Status    HealthStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	LatencyMS float64      `json:"latency_ms"`
}

// Health is the aggregate health report for the cache engine
type Health struct {
	Status            HealthStatus `json:"status"`
	Tiers             []TierHealth `json:"tiers"`
	HitRate           float64      `json:"hit_rate"`
	AvgResponseTimeMS float64      `json:"avg_response_time_ms"`
	CheckedAt         time.Time    `json:"checked_at"`
}

// Health probes every configured tier. The overall status is unhealthy only
// when the memory tier fails; a failing disk or remote tier degrades the
// cache without taking it down, since lookups skip broken tiers.
func (c *Coordinator) Health(ctx context.Context) Health {
	report := Health{
		Status:            StatusHealthy,
		AvgResponseTimeMS: c.avgResponseTimeMS(),
		CheckedAt:         c.now(),
	}
	if total := c.totalRequests.Load(); total > 0 {
		report.HitRate = float64(c.successfulRequests.Load()) / float64(total)
	}

	for _, tier := range c.tiers {
		start := c.now()
		err := tier.Healthy(ctx)
		probe := TierHealth{
			Tier:      tier.ID(),
			Status:    StatusHealthy,
			LatencyMS: float64(c.now().Sub(start).Microseconds()) / 1000.0,
		}

		if err != nil {
			probe.Status = StatusUnhealthy
			probe.Error = err.Error()

			if tier.ID() == TierMemory {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}

		report.Tiers = append(report.Tiers, probe)
	}

	return report
}
