package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meal-match-backend/internal/models"
)

type fakeQuerier struct {
	lists map[models.Timeslot][]string
	errs  map[models.Timeslot]error
	delay time.Duration

	mu    sync.Mutex
	calls []models.Timeslot
}

func (q *fakeQuerier) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	q.mu.Lock()
	q.calls = append(q.calls, slot)
	q.mu.Unlock()

	if q.delay > 0 {
		select {
		case <-time.After(q.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := q.errs[slot]; err != nil {
		return nil, err
	}
	return q.lists[slot], nil
}

func TestIndexBuilderBuildsBothDirections(t *testing.T) {
	q := &fakeQuerier{lists: map[models.Timeslot][]string{
		models.Breakfast: {"a", "b"},
		models.Tea:       {"b", "c", "b"},
	}}

	idx, err := NewIndexBuilder(q, time.Second).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := idx.TimeslotToUsers[models.Tea]; len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("tea list = %v, want [b c]", got)
	}
	if got := idx.TimeslotToUsers[models.Lunch]; len(got) != 0 {
		t.Errorf("lunch list = %v, want empty", got)
	}
	if got := idx.UserToTimeslots["b"]; len(got) != 2 || got[0] != models.Breakfast || got[1] != models.Tea {
		t.Errorf("timeslots of b = %v, want [breakfast tea]", got)
	}
	if len(q.calls) != len(models.Timeslots) {
		t.Errorf("querier called %d times, want %d", len(q.calls), len(models.Timeslots))
	}
}

func TestIndexBuilderQueryFailure(t *testing.T) {
	boom := errors.New("connection reset")
	q := &fakeQuerier{errs: map[models.Timeslot]error{models.Lunch: boom}}

	idx, err := NewIndexBuilder(q, time.Second).Build(context.Background())
	if idx != nil {
		t.Fatalf("expected no index, got %+v", idx)
	}

	var qerr *models.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *models.QueryError", err)
	}
	if qerr.Timeslot != models.Lunch {
		t.Errorf("failed timeslot = %s, want lunch", qerr.Timeslot)
	}
	if !errors.Is(err, boom) {
		t.Errorf("QueryError does not wrap the cause: %v", err)
	}
}

func TestIndexBuilderQueryTimeout(t *testing.T) {
	q := &fakeQuerier{delay: time.Second}

	_, err := NewIndexBuilder(q, 10*time.Millisecond).Build(context.Background())
	var qerr *models.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *models.QueryError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
