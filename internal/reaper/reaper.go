// Package reaper drives the registry's idle-eviction sweep on a fixed
// interval. It is the only background goroutine in the broker besides the
// per-child exit watchers owned by the driver.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is satisfied by *registry.Registry.
type Sweeper interface {
	ReapIdle(ctx context.Context, threshold time.Duration, now time.Time)
}

// Reaper wakes every Interval and calls Sweeper.ReapIdle(IdleThreshold, now()).
type Reaper struct {
	sweeper       Sweeper
	interval      time.Duration
	idleThreshold time.Duration
	logger        zerolog.Logger
}

func New(sweeper Sweeper, interval, idleThreshold time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{sweeper: sweeper, interval: interval, idleThreshold: idleThreshold, logger: logger}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("idle_threshold", r.idleThreshold).
		Msg("idle reaper started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("idle reaper stopped")
			return
		case <-ticker.C:
			r.sweeper.ReapIdle(ctx, r.idleThreshold, time.Now())
		}
	}
}
