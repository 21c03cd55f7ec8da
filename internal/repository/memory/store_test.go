package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"meal-match-backend/internal/models"
)

func seed(t *testing.T, s *Store, id string, since time.Time, slots ...models.Timeslot) {
	t.Helper()
	err := s.Create(context.Background(), &models.User{
		ID:                 id,
		Eligible:           true,
		PreferredTimeslots: slots,
		EligibleSince:      since,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
}

func TestEligibleForTimeslotOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	seed(t, s, "c", base, models.Lunch)
	seed(t, s, "b", base.Add(time.Minute), models.Lunch)
	seed(t, s, "a", base, models.Lunch, models.Tea)
	seed(t, s, "d", base, models.Tea)

	got, err := s.EligibleForTimeslot(ctx, models.Lunch)
	if err != nil {
		t.Fatalf("EligibleForTimeslot: %v", err)
	}
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestClaimIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "a", time.Now(), models.Breakfast)

	if err := s.ClaimUser(ctx, "a"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimUser(ctx, "a"); !errors.Is(err, models.ErrClaimConflict) {
		t.Fatalf("second claim err = %v, want ErrClaimConflict", err)
	}
	if err := s.ClaimUser(ctx, "missing"); !errors.Is(err, models.ErrClaimConflict) {
		t.Fatalf("claim of missing user err = %v, want ErrClaimConflict", err)
	}

	ids, _ := s.EligibleForTimeslot(ctx, models.Breakfast)
	if len(ids) != 0 {
		t.Errorf("claimed user still listed as eligible: %v", ids)
	}

	if err := s.ReleaseUser(ctx, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	user, _ := s.GetByID(ctx, "a")
	if !user.Eligible {
		t.Error("released user is not eligible")
	}
}

func TestSetEligibleStampsOnlyOnTransition(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, s, "a", first, models.Tea)

	later := first.Add(time.Hour)
	s.now = func() time.Time { return later }

	user, err := s.SetEligible(ctx, "a", true)
	if err != nil {
		t.Fatalf("SetEligible: %v", err)
	}
	if !user.EligibleSince.Equal(first) {
		t.Errorf("eligible_since changed while already eligible: %v", user.EligibleSince)
	}

	if _, err := s.SetEligible(ctx, "a", false); err != nil {
		t.Fatalf("SetEligible(false): %v", err)
	}
	user, _ = s.SetEligible(ctx, "a", true)
	if !user.EligibleSince.Equal(later) {
		t.Errorf("eligible_since = %v, want %v", user.EligibleSince, later)
	}

	if _, err := s.SetEligible(ctx, "missing", true); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("SetEligible(missing) err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	s := NewStore()
	seed(t, s, "a", time.Now())
	err := s.Create(context.Background(), &models.User{ID: "a"})
	if !errors.Is(err, models.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
}

func TestReleaseKeepsExternalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "a", time.Now(), models.Lunch)

	if err := s.ClaimUser(ctx, "a"); err != nil {
		t.Fatalf("ClaimUser: %v", err)
	}
	if _, err := s.SetEligible(ctx, "a", false); err != nil {
		t.Fatalf("SetEligible: %v", err)
	}
	if err := s.ReleaseUser(ctx, "a"); err != nil {
		t.Fatalf("ReleaseUser: %v", err)
	}

	user, _ := s.GetByID(ctx, "a")
	if user.Eligible {
		t.Error("release overwrote an external eligibility update")
	}
}

func TestReleaseAfterSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "a", time.Now(), models.Tea)
	seed(t, s, "b", time.Now(), models.Tea)

	for _, id := range []string{"a", "b"} {
		if err := s.ClaimUser(ctx, id); err != nil {
			t.Fatalf("ClaimUser(%s): %v", id, err)
		}
	}
	session, _ := models.NewSession(models.Pair{A: "a", B: "b"}, time.Now())
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.ReleaseUser(ctx, "a"); err != nil {
		t.Fatalf("ReleaseUser: %v", err)
	}

	user, _ := s.GetByID(ctx, "a")
	if user.Eligible {
		t.Error("release reopened a user that is already in a session")
	}
}
