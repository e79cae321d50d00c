package cache

import (
	"context"
	"time"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

// Sweeper periodically removes expired entries from the memory and disk
// tiers. Lazy expiry at read time remains authoritative; the sweeper only
// reclaims space held by entries nobody reads anymore.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      observability.Logger
}

// NewSweeper creates a sweeper over the coordinator's sweepable tiers
func NewSweeper(coordinator *Coordinator, interval time.Duration, logger observability.Logger) *Sweeper {
	return &Sweeper{
		coordinator: coordinator,
		interval:    interval,
		logger:      logger.WithPrefix("cache.sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", map[string]interface{}{
		"interval": s.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped", nil)
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed := s.coordinator.memory.SweepExpired(ctx)
	if s.coordinator.disk != nil {
		removed += s.coordinator.disk.SweepExpired(ctx)
	}
	if removed > 0 {
		s.logger.Debug("expired entries swept", map[string]interface{}{
			"removed": removed,
		})
	}
}
