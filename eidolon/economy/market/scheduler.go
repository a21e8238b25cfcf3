package market

import (
	"context"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/logger"
	"golang.org/x/sync/semaphore"
)

// Scheduler drives periodic background price ticks. Manually triggered ticks
// stay available regardless of whether the scheduler is running.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	sem      *semaphore.Weighted
}

func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		sem:      semaphore.NewWeighted(1),
	}
}

// Start launches the tick loop. It returns immediately and stops when ctx is
// cancelled. A zero or negative interval disables the loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		logger.LogSystem("Market tick scheduler disabled")
		return
	}

	logger.LogSystem("Market tick scheduler started", "interval", s.interval.String())
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.LogSystem("Market tick scheduler stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// runOnce skips the tick when a previous run is still in flight.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.sem.TryAcquire(1) {
		logger.LogSystem("Skipping market tick, previous run still in progress")
		return
	}
	defer s.sem.Release(1)

	if _, err := s.engine.SimulateTick(ctx, 0); err != nil {
		logger.LogError("Scheduled market tick failed", err)
	}
}
