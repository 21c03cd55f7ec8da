package models

import (
	"errors"
	"fmt"
)

var (
	// ErrClaimConflict means a user was no longer eligible when the claim ran
	ErrClaimConflict = errors.New("claim conflict")
	// ErrUserNotFound is returned when a user record does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose id is taken
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUser is returned for malformed user input
	ErrInvalidUser = errors.New("invalid user")
)

// QueryError reports a failed eligibility query for one timeslot.
// The whole matching run is aborted before any write when it occurs.
type QueryError struct {
	Timeslot Timeslot
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to query eligible users for %s: %v", e.Timeslot, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// CommitError reports a pair that could not be committed for a reason other
// than a claim conflict. Compensation is set when releasing an already
// claimed user also failed, which leaves that user sidelined until repaired.
type CommitError struct {
	Pair         Pair
	Err          error
	Compensation error
}

func (e *CommitError) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("failed to commit pair %s: %v (compensation failed: %v)", e.Pair, e.Err, e.Compensation)
	}
	return fmt.Sprintf("failed to commit pair %s: %v", e.Pair, e.Err)
}

func (e *CommitError) Unwrap() []error {
	if e.Compensation != nil {
		return []error{e.Err, e.Compensation}
	}
	return []error{e.Err}
}
