package services

import (
	"context"

	"meal-match-backend/internal/models"
)

// EligibleUserQuerier lists eligible users for a timeslot, in arrival order
type EligibleUserQuerier interface {
	EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error)
}

// PairCommitter claims both participants of a session and inserts it as a
// single atomic unit. It returns models.ErrClaimConflict, and changes
// nothing, when either participant is no longer eligible.
type PairCommitter interface {
	CommitPair(ctx context.Context, session *models.Session) error
}

// StepwiseCommitter is implemented by stores that can only flip one user at
// a time. ClaimUser returns models.ErrClaimConflict when the user is not
// eligible. ReleaseUser undoes an outstanding claim; it must not reopen a
// user whose eligibility was set elsewhere after the claim, or one already
// placed in a session.
type StepwiseCommitter interface {
	ClaimUser(ctx context.Context, userID string) error
	ReleaseUser(ctx context.Context, userID string) error
	CreateSession(ctx context.Context, session *models.Session) error
}

// UserStore manages the user records the matcher reads and writes
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetEligible(ctx context.Context, id string, eligible bool) (*models.User, error)
}
