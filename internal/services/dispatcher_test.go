package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"meal-match-backend/internal/models"
	"meal-match-backend/internal/repository/memory"
)

type runnerFunc func(ctx context.Context) (*RunResult, error)

func (f runnerFunc) Run(ctx context.Context) (*RunResult, error) {
	return f(ctx)
}

func TestDispatcherSkipsIneligibleUpdate(t *testing.T) {
	calls := 0
	d := NewDispatcher(runnerFunc(func(context.Context) (*RunResult, error) {
		calls++
		return &RunResult{}, nil
	}), time.Second)

	result, err := d.OnEligibilityUpdated(context.Background(), "a", false)
	if result != nil || err != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", result, err)
	}
	if calls != 0 {
		t.Fatalf("runner called %d times, want 0", calls)
	}

	if _, err := d.OnEligibilityUpdated(context.Background(), "a", true); err != nil {
		t.Fatalf("OnEligibilityUpdated: %v", err)
	}
	if _, err := d.OnUserCreated(context.Background(), "b"); err != nil {
		t.Fatalf("OnUserCreated: %v", err)
	}
	if _, err := d.OnSweep(context.Background()); err != nil {
		t.Fatalf("OnSweep: %v", err)
	}
	if calls != 3 {
		t.Errorf("runner called %d times, want 3", calls)
	}
}

func TestDispatcherAppliesRunTimeout(t *testing.T) {
	d := NewDispatcher(runnerFunc(func(ctx context.Context) (*RunResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond)

	_, err := d.OnUserCreated(context.Background(), "a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(runnerFunc(func(context.Context) (*RunResult, error) {
		panic("nil map")
	}), 0)

	result, err := d.OnSweep(context.Background())
	if err == nil || result != nil {
		t.Fatalf("got (%v, %v), want an error", result, err)
	}
}

type panickingQuerier struct{}

func (panickingQuerier) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	var empty []string
	return empty[:1], nil
}

func TestDispatcherRecoversQuerierPanic(t *testing.T) {
	store := memory.NewStore()
	matcher := NewMatcher(NewIndexBuilder(panickingQuerier{}, time.Second), newStepwiseCommitter(t, store))

	result, err := NewDispatcher(matcher, time.Second).OnUserCreated(context.Background(), "a")
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	var qerr *models.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *models.QueryError", err)
	}
}

func TestDispatcherRecoversCommitterPanic(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Lunch, "a", "b", "c", "d")
	store.SetHooks(memory.Hooks{Claim: func(id string) error {
		if id == "a" {
			panic("claim blew up")
		}
		return nil
	}})

	result, err := NewDispatcher(newMemoryMatcher(t, store, nil), time.Second).OnUserCreated(context.Background(), "a")
	var cerr *models.CommitError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *models.CommitError", err)
	}
	if cerr.Pair != (models.Pair{A: "a", B: "b"}) {
		t.Errorf("failed pair = %v, want a+b", cerr.Pair)
	}
	if result == nil || len(result.Sessions) != 1 {
		t.Fatalf("result = %+v, want the other pair committed", result)
	}
}
