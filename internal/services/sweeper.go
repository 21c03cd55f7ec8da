package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper re-runs matching on a schedule so users left unpaired are
// reconsidered even when no new user event arrives
type Sweeper struct {
	dispatcher *Dispatcher
	cron       *cron.Cron
}

// NewSweeper creates a sweeper for a standard cron spec or descriptor such as "@every 5m"
func NewSweeper(dispatcher *Dispatcher, schedule string) (*Sweeper, error) {
	s := &Sweeper{
		dispatcher: dispatcher,
		cron:       cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{}))),
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("failed to parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start launches the scheduler
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("Sweeper started")
}

// Stop waits for a running sweep to finish or ctx to expire
func (s *Sweeper) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	log.Info().Msg("Sweeper stopped")
}

func (s *Sweeper) sweep() {
	result, err := s.dispatcher.OnSweep(context.Background())
	if err != nil {
		return
	}
	log.Debug().Int("sessions", len(result.Sessions)).Msg("Sweep finished")
}

// cronLogger sends scheduler messages to the global zerolog logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
