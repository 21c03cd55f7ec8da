// Package memory is an in-process store for local runs and tests. It only
// supports per-user claims, so the matcher composes them with compensation.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"meal-match-backend/internal/models"
)

// Hooks lets tests inject failures. A hook returning an error makes the
// operation fail with that error before anything changes.
type Hooks struct {
	Query         func(slot models.Timeslot) error
	Claim         func(userID string) error
	Release       func(userID string) error
	CreateSession func(session *models.Session) error
}

// Store keeps users and sessions in maps guarded by one mutex
type Store struct {
	mu       sync.Mutex
	users    map[string]*models.User
	claimed  map[string]bool
	sessions []*models.Session
	hooks    Hooks
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:   make(map[string]*models.User),
		claimed: make(map[string]bool),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetHooks replaces the fault-injection hooks
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Create creates a new user
func (s *Store) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return models.ErrUserExists
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID retrieves a user by ID
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// SetEligible sets the eligibility flag, stamping EligibleSince when it turns on
func (s *Store) SetEligible(ctx context.Context, id string, eligible bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	if eligible && !user.Eligible {
		user.EligibleSince = s.now()
	}
	user.Eligible = eligible
	delete(s.claimed, id)
	return cloneUser(user), nil
}

// EligibleForTimeslot lists eligible users preferring the timeslot, oldest eligibility first
func (s *Store) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooks.Query != nil {
		if err := s.hooks.Query(slot); err != nil {
			return nil, err
		}
	}

	var matched []*models.User
	for _, user := range s.users {
		if user.Eligible && user.Prefers(slot) {
			matched = append(matched, user)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EligibleSince.Equal(matched[j].EligibleSince) {
			return matched[i].EligibleSince.Before(matched[j].EligibleSince)
		}
		return matched[i].ID < matched[j].ID
	})

	ids := make([]string, len(matched))
	for i, user := range matched {
		ids[i] = user.ID
	}
	return ids, nil
}

// ClaimUser flips an eligible user to ineligible
func (s *Store) ClaimUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooks.Claim != nil {
		if err := s.hooks.Claim(userID); err != nil {
			return err
		}
	}

	user, ok := s.users[userID]
	if !ok || !user.Eligible {
		return models.ErrClaimConflict
	}
	user.Eligible = false
	s.claimed[userID] = true
	return nil
}

// ReleaseUser makes a claimed user eligible again without changing its arrival
// order. A claim already overridden by SetEligible is left alone.
func (s *Store) ReleaseUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooks.Release != nil {
		if err := s.hooks.Release(userID); err != nil {
			return err
		}
	}

	user, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if !s.claimed[userID] {
		return nil
	}
	delete(s.claimed, userID)
	user.Eligible = true
	return nil
}

// CreateSession stores a session
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooks.CreateSession != nil {
		if err := s.hooks.CreateSession(session); err != nil {
			return err
		}
	}

	copied := *session
	s.sessions = append(s.sessions, &copied)
	for _, id := range session.Participants {
		delete(s.claimed, id)
	}
	return nil
}

// Sessions returns every stored session in insertion order
func (s *Store) Sessions() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Session, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = *session
	}
	return out
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.PreferredTimeslots = slices.Clone(u.PreferredTimeslots)
	return &c
}
