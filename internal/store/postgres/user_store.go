package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	conn
}

// Upsert inserts the user or refreshes its name and email from the latest token.
func (s *UserStore) Upsert(ctx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO users (user_id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
		WHERE users.name IS DISTINCT FROM EXCLUDED.name OR users.email IS DISTINCT FROM EXCLUDED.email
	`

	if _, err := s.pool.Exec(ctx, query, user.UserID, user.Name, user.Email, user.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert user: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT user_id, name, email, created_at, updated_at FROM users WHERE user_id = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(&u.UserID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}
