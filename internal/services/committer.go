package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal-match-backend/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const releaseTimeout = 5 * time.Second

// CommitReport describes what happened to each selected pair
type CommitReport struct {
	Sessions  []*models.Session
	Conflicts []models.Pair
	Failures  []*models.CommitError
}

// Err joins every commit failure, or returns nil when there were none
func (r *CommitReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// MatchCommitter turns selected pairs into sessions, claiming both users first
type MatchCommitter struct {
	joint       PairCommitter
	stepwise    StepwiseCommitter
	concurrency int
	now         func() time.Time
}

// NewMatchCommitter creates a committer for the store. Stores that can claim
// a pair and insert its session in one unit are preferred; otherwise the
// store must support per-user claims and the committer compensates.
func NewMatchCommitter(store any, concurrency int) (*MatchCommitter, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	c := &MatchCommitter{concurrency: concurrency, now: time.Now}

	switch s := store.(type) {
	case PairCommitter:
		c.joint = s
	case StepwiseCommitter:
		c.stepwise = s
	default:
		return nil, fmt.Errorf("store %T cannot claim users", store)
	}
	return c, nil
}

// WithClock overrides the session timestamp source
func (c *MatchCommitter) WithClock(now func() time.Time) *MatchCommitter {
	c.now = now
	return c
}

type pairOutcome struct {
	session  *models.Session
	conflict bool
	err      *models.CommitError
}

// Commit attempts every pair independently. A failure on one pair neither
// blocks nor rolls back the others. Results keep the order of pairs.
func (c *MatchCommitter) Commit(ctx context.Context, pairs []models.Pair) *CommitReport {
	outcomes := make([]pairOutcome, len(pairs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, pair := range pairs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = pairOutcome{err: &models.CommitError{
						Pair: pair,
						Err:  fmt.Errorf("commit panicked: %v", r),
					}}
				}
			}()

			outcomes[i] = c.commitPair(ctx, pair)
			return nil
		})
	}
	_ = g.Wait()

	report := &CommitReport{}
	for i, o := range outcomes {
		switch {
		case o.session != nil:
			report.Sessions = append(report.Sessions, o.session)
		case o.conflict:
			log.Info().
				Str("user_a", pairs[i].A).
				Str("user_b", pairs[i].B).
				Msg("Pair dropped: user already claimed")
			report.Conflicts = append(report.Conflicts, pairs[i])
		case o.err != nil:
			log.Error().
				Err(o.err).
				Str("user_a", pairs[i].A).
				Str("user_b", pairs[i].B).
				Bool("compensation_failed", o.err.Compensation != nil).
				Msg("Failed to commit pair")
			report.Failures = append(report.Failures, o.err)
		}
	}
	return report
}

func (c *MatchCommitter) commitPair(ctx context.Context, pair models.Pair) pairOutcome {
	session, err := models.NewSession(pair, c.now())
	if err != nil {
		return pairOutcome{err: &models.CommitError{Pair: pair, Err: err}}
	}

	if c.joint != nil {
		if err := c.joint.CommitPair(ctx, session); err != nil {
			if errors.Is(err, models.ErrClaimConflict) {
				return pairOutcome{conflict: true}
			}
			return pairOutcome{err: &models.CommitError{Pair: pair, Err: err}}
		}
		return pairOutcome{session: session}
	}

	return c.commitStepwise(ctx, pair, session)
}

// commitStepwise claims A, then B, then inserts the session. Every claim made
// before a failing step is released again.
func (c *MatchCommitter) commitStepwise(ctx context.Context, pair models.Pair, session *models.Session) pairOutcome {
	if err := c.stepwise.ClaimUser(ctx, pair.A); err != nil {
		if errors.Is(err, models.ErrClaimConflict) {
			return pairOutcome{conflict: true}
		}
		return pairOutcome{err: &models.CommitError{Pair: pair, Err: err}}
	}

	if err := c.stepwise.ClaimUser(ctx, pair.B); err != nil {
		if relErr := c.release(ctx, pair.A); relErr != nil {
			return pairOutcome{err: &models.CommitError{Pair: pair, Err: err, Compensation: relErr}}
		}
		if errors.Is(err, models.ErrClaimConflict) {
			return pairOutcome{conflict: true}
		}
		return pairOutcome{err: &models.CommitError{Pair: pair, Err: err}}
	}

	if err := c.stepwise.CreateSession(ctx, session); err != nil {
		relErr := errors.Join(c.release(ctx, pair.A), c.release(ctx, pair.B))
		return pairOutcome{err: &models.CommitError{
			Pair:         pair,
			Err:          fmt.Errorf("failed to create session: %w", err),
			Compensation: relErr,
		}}
	}

	return pairOutcome{session: session}
}

// release runs even when the run's context is already cancelled
func (c *MatchCommitter) release(ctx context.Context, userID string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := c.stepwise.ReleaseUser(rctx, userID); err != nil {
		return fmt.Errorf("failed to release user %s: %w", userID, err)
	}
	return nil
}
