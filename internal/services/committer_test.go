package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meal-match-backend/internal/models"
	"meal-match-backend/internal/repository/memory"
)

func seedUsers(t *testing.T, store *memory.Store, slot models.Timeslot, ids ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range ids {
		err := store.Create(context.Background(), &models.User{
			ID:                 id,
			Eligible:           true,
			PreferredTimeslots: []models.Timeslot{slot},
			EligibleSince:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
}

func mustEligible(t *testing.T, store *memory.Store, id string, want bool) {
	t.Helper()
	user, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	if user.Eligible != want {
		t.Errorf("user %s eligible = %v, want %v", id, user.Eligible, want)
	}
}

func newStepwiseCommitter(t *testing.T, store *memory.Store) *MatchCommitter {
	t.Helper()
	c, err := NewMatchCommitter(store, 4)
	if err != nil {
		t.Fatalf("NewMatchCommitter: %v", err)
	}
	return c
}

func TestCommitStepwiseCreatesSession(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Breakfast, "a", "b")

	report := newStepwiseCommitter(t, store).Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if err := report.Err(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(report.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(report.Sessions))
	}
	if got := report.Sessions[0].Participants; got != [2]string{"a", "b"} {
		t.Errorf("participants = %v", got)
	}
	mustEligible(t, store, "a", false)
	mustEligible(t, store, "b", false)
	if n := len(store.Sessions()); n != 1 {
		t.Errorf("stored sessions = %d, want 1", n)
	}
}

func TestCommitStepwiseSecondClaimConflictReleasesFirst(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Lunch, "a", "b")
	store.SetHooks(memory.Hooks{Claim: func(id string) error {
		if id == "b" {
			return models.ErrClaimConflict
		}
		return nil
	}})

	report := newStepwiseCommitter(t, store).Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if err := report.Err(); err != nil {
		t.Fatalf("conflict reported as failure: %v", err)
	}
	if len(report.Conflicts) != 1 || len(report.Sessions) != 0 {
		t.Fatalf("report = %+v, want one conflict and no session", report)
	}
	mustEligible(t, store, "a", true)
	if n := len(store.Sessions()); n != 0 {
		t.Errorf("stored sessions = %d, want 0", n)
	}
}

func TestCommitStepwiseSecondClaimFailureReleasesFirst(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Lunch, "a", "b")
	boom := errors.New("write timeout")
	store.SetHooks(memory.Hooks{Claim: func(id string) error {
		if id == "b" {
			return boom
		}
		return nil
	}})

	report := newStepwiseCommitter(t, store).Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	if f := report.Failures[0]; !errors.Is(f, boom) || f.Compensation != nil {
		t.Errorf("failure = %v (compensation %v)", f, f.Compensation)
	}
	mustEligible(t, store, "a", true)
	mustEligible(t, store, "b", true)
}

func TestCommitStepwiseCompensationFailureIsReported(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Tea, "a", "b")
	claimErr := errors.New("claim b failed")
	releaseErr := errors.New("release a failed")
	store.SetHooks(memory.Hooks{
		Claim: func(id string) error {
			if id == "b" {
				return claimErr
			}
			return nil
		},
		Release: func(string) error { return releaseErr },
	})

	report := newStepwiseCommitter(t, store).Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	f := report.Failures[0]
	if !errors.Is(f.Compensation, releaseErr) {
		t.Errorf("compensation = %v, want %v", f.Compensation, releaseErr)
	}
	if !errors.Is(report.Err(), claimErr) || !errors.Is(report.Err(), releaseErr) {
		t.Errorf("joined error %v misses a cause", report.Err())
	}
}

func TestCommitStepwiseSessionFailureReleasesBoth(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Breakfast, "a", "b")
	store.SetHooks(memory.Hooks{CreateSession: func(*models.Session) error {
		return errors.New("insert failed")
	}})

	report := newStepwiseCommitter(t, store).Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	mustEligible(t, store, "a", true)
	mustEligible(t, store, "b", true)
}

func TestCommitOnePairFailureDoesNotBlockOthers(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Breakfast, "a", "b", "c", "d")
	store.SetHooks(memory.Hooks{Claim: func(id string) error {
		if id == "a" {
			return errors.New("unavailable")
		}
		return nil
	}})

	pairs := []models.Pair{{A: "a", B: "b"}, {A: "c", B: "d"}}
	report := newStepwiseCommitter(t, store).Commit(context.Background(), pairs)
	if len(report.Failures) != 1 || len(report.Sessions) != 1 {
		t.Fatalf("report = %+v, want one failure and one session", report)
	}
	if got := report.Sessions[0].Pair(); got != pairs[1] {
		t.Errorf("session pair = %v, want %v", got, pairs[1])
	}
}

func TestCommitReleasesAfterCancellation(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, models.Lunch, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	store.SetHooks(memory.Hooks{Claim: func(id string) error {
		if id == "b" {
			cancel()
			return context.Canceled
		}
		return nil
	}})

	report := newStepwiseCommitter(t, store).Commit(ctx, []models.Pair{{A: "a", B: "b"}})
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	mustEligible(t, store, "a", true)
}

type jointStore struct {
	mu        sync.Mutex
	conflicts map[string]bool
	err       error
	committed []*models.Session
}

func (s *jointStore) CommitPair(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, id := range session.Participants {
		if s.conflicts[id] {
			return models.ErrClaimConflict
		}
	}
	s.committed = append(s.committed, session)
	return nil
}

func TestCommitJoint(t *testing.T) {
	store := &jointStore{conflicts: map[string]bool{"x": true}}
	c, err := NewMatchCommitter(store, 2)
	if err != nil {
		t.Fatalf("NewMatchCommitter: %v", err)
	}
	fixed := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	c.WithClock(func() time.Time { return fixed })

	report := c.Commit(context.Background(), []models.Pair{{A: "a", B: "b"}, {A: "x", B: "y"}})
	if err := report.Err(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(report.Sessions) != 1 || len(report.Conflicts) != 1 {
		t.Fatalf("report = %+v, want one session and one conflict", report)
	}
	if !report.Sessions[0].CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", report.Sessions[0].CreatedAt, fixed)
	}
	if len(store.committed) != 1 {
		t.Errorf("joint store received %d sessions, want 1", len(store.committed))
	}
}

func TestCommitJointFailure(t *testing.T) {
	boom := errors.New("transaction aborted")
	c, err := NewMatchCommitter(&jointStore{err: boom}, 1)
	if err != nil {
		t.Fatalf("NewMatchCommitter: %v", err)
	}
	report := c.Commit(context.Background(), []models.Pair{{A: "a", B: "b"}})
	if !errors.Is(report.Err(), boom) {
		t.Fatalf("err = %v, want %v", report.Err(), boom)
	}
}

func TestNewMatchCommitterRejectsUnknownStore(t *testing.T) {
	if _, err := NewMatchCommitter(struct{}{}, 1); err == nil {
		t.Fatal("expected error for store without claim support")
	}
}
