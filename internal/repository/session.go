package repository

import (
	"context"
	"fmt"

	"meal-match-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// CommitPair claims both participants and inserts the session in one
// transaction. If either participant is no longer eligible nothing is
// written and models.ErrClaimConflict is returned.
func (r *SessionRepository) CommitPair(ctx context.Context, session *models.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	participants := session.Participants[:]

	// Lock in id order so two runs claiming overlapping pairs cannot deadlock
	lockQuery := `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if _, err := tx.Exec(ctx, lockQuery, participants); err != nil {
		return fmt.Errorf("failed to lock participants: %w", err)
	}

	claimQuery := `
		UPDATE users
		SET eligible = false, updated_at = NOW()
		WHERE id = ANY($1) AND eligible
	`
	tag, err := tx.Exec(ctx, claimQuery, participants)
	if err != nil {
		return fmt.Errorf("failed to claim participants: %w", err)
	}
	if tag.RowsAffected() != int64(len(participants)) {
		return models.ErrClaimConflict
	}

	insertQuery := `
		INSERT INTO sessions (id, participants, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, insertQuery, session.ID, participants, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}
