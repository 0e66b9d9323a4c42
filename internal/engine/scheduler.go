package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblac/mintwatch/internal/metrics"
)

// Scheduler triggers one cycle per interval. A tick that fires while a cycle
// is still running is dropped, so at most one cycle is ever in flight.
type Scheduler struct {
	Interval time.Duration
	Run      func(ctx context.Context)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// Start runs a cycle immediately and then on every tick until ctx is done.
// It returns after the in-flight cycle, if any, has finished.
func (s *Scheduler) Start(ctx context.Context) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	defer s.wg.Wait()

	s.trigger(ctx, log)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, log)
		}
	}
}

// trigger starts a cycle unless one is already running.
func (s *Scheduler) trigger(ctx context.Context, log *slog.Logger) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.Metrics.TickSkipped()
		log.Warn("tick skipped: previous cycle still running")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		defer func() {
			if rec := recover(); rec != nil {
				s.Metrics.Errors()
				log.Error("cycle panicked", "panic", rec)
			}
		}()
		s.Run(ctx)
	}()
	return true
}
