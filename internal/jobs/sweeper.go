// Package jobs runs periodic maintenance in the background.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/services"
)

// sweepTimeout bounds a single sweep.
const sweepTimeout = time.Minute

// Expirer cancels proposals older than a cutoff.
type Expirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// SwapSweeper cancels swap proposals that stayed unanswered for too long.
type SwapSweeper struct {
	swaps  Expirer
	events services.EventServiceProvider
	ttl    time.Duration
	cron   *cron.Cron
	log    *logger.Logger
}

// NewSwapSweeper creates a sweeper running on schedule, a standard cron
// expression or descriptor such as "@every 1h".
func NewSwapSweeper(swaps Expirer, events services.EventServiceProvider, ttl time.Duration, schedule string, log *logger.Logger) (*SwapSweeper, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s := &SwapSweeper{
		swaps:  swaps,
		events: events,
		ttl:    ttl,
		log:    log.Component("sweeper"),
	}

	cl := cronLogger{s.log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	s.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}))
	return s, nil
}

// Start runs one sweep right away, then follows the schedule.
func (s *SwapSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("ttl", s.ttl).Msg("starting swap sweeper")
	_, _ = s.Sweep(ctx)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SwapSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("stopped swap sweeper")
}

// Sweep cancels stale proposals once and records the outcome.
func (s *SwapSweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.swaps.ExpireStale(ctx, s.ttl)
	if err != nil {
		s.log.Error().Err(err).Int("expired", n).Msg("failed to expire stale swaps")
		return n, err
	}
	if n == 0 {
		return 0, nil
	}

	s.log.Info().Int("expired", n).Msg("expired stale swap proposals")
	message := fmt.Sprintf("%d stale swap proposal(s) cancelled", n)
	if err := s.events.CreateEvent(ctx, nil, "swap.expired", services.LevelInfo, message, nil); err != nil {
		s.log.Warn().Err(err).Msg("failed to record sweep event")
	}
	return n, nil
}

// cronLogger adapts the zerolog logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
