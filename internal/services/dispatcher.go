package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner performs one matching run
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Dispatcher maps user record events onto matching runs. Runs may overlap;
// consistency is enforced by the committer's claims, not by serializing here.
type Dispatcher struct {
	runner     Runner
	runTimeout time.Duration
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(runner Runner, runTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		runner:     runner,
		runTimeout: runTimeout,
	}
}

// OnUserCreated runs the matcher after a user record is created
func (d *Dispatcher) OnUserCreated(ctx context.Context, userID string) (*RunResult, error) {
	return d.run(ctx, "user_created", userID)
}

// OnEligibilityUpdated runs the matcher when a user became eligible.
// Updates that leave the user ineligible return a nil result without running.
func (d *Dispatcher) OnEligibilityUpdated(ctx context.Context, userID string, eligible bool) (*RunResult, error) {
	if !eligible {
		log.Debug().Str("user_id", userID).Msg("Eligibility update is not eligible, skipping match")
		return nil, nil
	}
	return d.run(ctx, "eligibility_updated", userID)
}

// OnSweep runs the matcher from the periodic schedule
func (d *Dispatcher) OnSweep(ctx context.Context) (*RunResult, error) {
	return d.run(ctx, "sweep", "")
}

func (d *Dispatcher) run(ctx context.Context, trigger, userID string) (result *RunResult, err error) {
	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("matching run panicked: %v", r)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("trigger", trigger).
				Str("user_id", userID).
				Msg("Matching run failed")
		}
	}()

	return d.runner.Run(ctx)
}
