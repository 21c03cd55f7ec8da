package services

import (
	"context"
	"time"

	"meal-match-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// RunResult summarizes one matching run
type RunResult struct {
	Sessions  []*models.Session       `json:"sessions"`
	Conflicts []models.Pair           `json:"conflicts"`
	Eligible  map[models.Timeslot]int `json:"eligible"`
	Duration  time.Duration           `json:"-"`
}

// Matcher runs the index, selection and commit stages in sequence
type Matcher struct {
	builder   *IndexBuilder
	committer *MatchCommitter
}

// NewMatcher creates a new matcher
func NewMatcher(builder *IndexBuilder, committer *MatchCommitter) *Matcher {
	return &Matcher{
		builder:   builder,
		committer: committer,
	}
}

// Run performs one matching pass over the current eligible pool.
// A failed index build returns a *models.QueryError before any write.
// Commit failures are returned joined, alongside the sessions that did
// commit; claim conflicts are not errors.
func (m *Matcher) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	idx, err := m.builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	pairs := SelectPairs(idx)
	report := m.committer.Commit(ctx, pairs)

	result := &RunResult{
		Sessions:  report.Sessions,
		Conflicts: report.Conflicts,
		Eligible:  make(map[models.Timeslot]int, len(idx.TimeslotToUsers)),
		Duration:  time.Since(start),
	}
	for slot, users := range idx.TimeslotToUsers {
		result.Eligible[slot] = len(users)
	}

	log.Info().
		Int("eligible_users", len(idx.UserToTimeslots)).
		Int("pairs", len(pairs)).
		Int("sessions", len(report.Sessions)).
		Int("conflicts", len(report.Conflicts)).
		Int("failures", len(report.Failures)).
		Dur("duration", result.Duration).
		Msg("Matching run finished")

	return result, report.Err()
}
