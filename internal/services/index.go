package services

import (
	"context"
	"fmt"
	"time"

	"meal-match-backend/internal/models"

	"golang.org/x/sync/errgroup"
)

// TimeslotIndex is a snapshot of the eligible pool grouped by timeslot.
// It is never mutated after Build returns.
type TimeslotIndex struct {
	TimeslotToUsers map[models.Timeslot][]string
	UserToTimeslots map[string][]models.Timeslot
}

// NewTimeslotIndex builds both directions of the index from per-timeslot lists
func NewTimeslotIndex(lists map[models.Timeslot][]string) *TimeslotIndex {
	idx := &TimeslotIndex{
		TimeslotToUsers: make(map[models.Timeslot][]string, len(models.Timeslots)),
		UserToTimeslots: make(map[string][]models.Timeslot),
	}
	for _, slot := range models.Timeslots {
		users := make([]string, 0, len(lists[slot]))
		seen := make(map[string]bool, len(lists[slot]))
		for _, id := range lists[slot] {
			if seen[id] {
				continue
			}
			seen[id] = true
			users = append(users, id)
			idx.UserToTimeslots[id] = append(idx.UserToTimeslots[id], slot)
		}
		idx.TimeslotToUsers[slot] = users
	}
	return idx
}

// IndexBuilder queries the eligible pool once per timeslot
type IndexBuilder struct {
	querier      EligibleUserQuerier
	queryTimeout time.Duration
}

// NewIndexBuilder creates a new index builder
func NewIndexBuilder(querier EligibleUserQuerier, queryTimeout time.Duration) *IndexBuilder {
	return &IndexBuilder{
		querier:      querier,
		queryTimeout: queryTimeout,
	}
}

// Build runs the per-timeslot queries concurrently and waits for all of them.
// Any failed query fails the build with a *models.QueryError.
func (b *IndexBuilder) Build(ctx context.Context) (*TimeslotIndex, error) {
	results := make([][]string, len(models.Timeslots))

	g, gctx := errgroup.WithContext(ctx)
	for i, slot := range models.Timeslots {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &models.QueryError{Timeslot: slot, Err: fmt.Errorf("query panicked: %v", r)}
				}
			}()

			qctx := gctx
			if b.queryTimeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(gctx, b.queryTimeout)
				defer cancel()
			}

			users, err := b.querier.EligibleForTimeslot(qctx, slot)
			if err != nil {
				return &models.QueryError{Timeslot: slot, Err: err}
			}
			results[i] = users
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := make(map[models.Timeslot][]string, len(models.Timeslots))
	for i, slot := range models.Timeslots {
		lists[slot] = results[i]
	}
	return NewTimeslotIndex(lists), nil
}
