package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal-match-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, eligible, preferred_timeslots, eligible_since, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	var eligibleSince *time.Time
	if !user.EligibleSince.IsZero() {
		eligibleSince = &user.EligibleSince
	}

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Eligible, timeslotStrings(user.PreferredTimeslots), eligibleSince, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, eligible, preferred_timeslots, eligible_since, created_at
		FROM users
		WHERE id = $1
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SetEligible updates the eligibility flag. eligible_since only moves when
// the user goes from ineligible to eligible.
func (r *UserRepository) SetEligible(ctx context.Context, id string, eligible bool) (*models.User, error) {
	query := `
		UPDATE users
		SET eligible_since = CASE WHEN $2 AND NOT eligible THEN NOW() ELSE eligible_since END,
		    eligible = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, eligible, preferred_timeslots, eligible_since, created_at
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, id, eligible))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set eligibility: %w", err)
	}
	return user, nil
}

// EligibleForTimeslot lists eligible users preferring the timeslot, oldest eligibility first
func (r *UserRepository) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	query := `
		SELECT id
		FROM users
		WHERE eligible AND $1 = ANY(preferred_timeslots)
		ORDER BY eligible_since, id
	`
	rows, err := r.db.Query(ctx, query, string(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible users: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible users: %w", err)
	}
	return ids, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user          models.User
		slots         []string
		eligibleSince *time.Time
	)
	if err := row.Scan(&user.ID, &user.Eligible, &slots, &eligibleSince, &user.CreatedAt); err != nil {
		return nil, err
	}

	user.PreferredTimeslots = make([]models.Timeslot, len(slots))
	for i, s := range slots {
		user.PreferredTimeslots[i] = models.Timeslot(s)
	}
	if eligibleSince != nil {
		user.EligibleSince = eligibleSince.UTC()
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func timeslotStrings(slots []models.Timeslot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}
