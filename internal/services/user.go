package services

import (
	"context"
	"fmt"
	"time"

	"meal-match-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UserService handles user writes and fires the matching triggers they imply
type UserService struct {
	users      UserStore
	dispatcher *Dispatcher
}

// NewUserService creates a new user service
func NewUserService(users UserStore, dispatcher *Dispatcher) *UserService {
	return &UserService{
		users:      users,
		dispatcher: dispatcher,
	}
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	ID                 string   `json:"id,omitempty"`
	PreferredTimeslots []string `json:"preferred_timeslots"`
	Eligible           *bool    `json:"eligible,omitempty"`
}

// WriteResult is a committed user write plus the matching run it triggered.
// MatchErr is set when the write succeeded but the run did not.
type WriteResult struct {
	User     *models.User
	Match    *RunResult
	MatchErr error
}

// CreateUser stores a new user and runs the matcher
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*WriteResult, error) {
	slots, err := models.NormalizeTimeslots(req.PreferredTimeslots)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidUser, err)
	}

	userID := req.ID
	if userID == "" {
		userID = uuid.New().String()
	}

	eligible := true
	if req.Eligible != nil {
		eligible = *req.Eligible
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:                 userID,
		Eligible:           eligible,
		PreferredTimeslots: slots,
		CreatedAt:          now,
	}
	if eligible {
		user.EligibleSince = now
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Bool("eligible", user.Eligible).
		Int("timeslots", len(user.PreferredTimeslots)).
		Msg("User created")

	match, matchErr := s.dispatcher.OnUserCreated(ctx, user.ID)
	return s.afterMatch(ctx, user.ID, match, matchErr)
}

// SetEligibility updates a user's eligibility and runs the matcher when it became eligible
func (s *UserService) SetEligibility(ctx context.Context, userID string, eligible bool) (*WriteResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidUser)
	}

	user, err := s.users.SetEligible(ctx, userID, eligible)
	if err != nil {
		return nil, fmt.Errorf("failed to update eligibility: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Bool("eligible", eligible).
		Msg("User eligibility updated")

	match, matchErr := s.dispatcher.OnEligibilityUpdated(ctx, user.ID, eligible)
	if match == nil && matchErr == nil {
		return &WriteResult{User: user}, nil
	}
	return s.afterMatch(ctx, user.ID, match, matchErr)
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// afterMatch re-reads the user so the response reflects a claim made by the run
func (s *UserService) afterMatch(ctx context.Context, userID string, match *RunResult, matchErr error) (*WriteResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return &WriteResult{User: user, Match: match, MatchErr: matchErr}, nil
}
