package repository

import (
	"context"
	"fmt"
	"time"

	"meal-match-backend/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store is the PostgreSQL backend. It claims pairs jointly inside one transaction.
type Store struct {
	*UserRepository
	*SessionRepository
	db *pgxpool.Pool
}

// NewStore wraps an open pool
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		UserRepository:    NewUserRepository(db),
		SessionRepository: NewSessionRepository(db),
		db:                db,
	}
}

// Connect opens a pool and checks the connection
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("db", cfg.DBName).
		Msg("Database connection established")
	return db, nil
}

// Close releases the pool
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
