package memory

import (
	"context"
	"time"

	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	db *db
}

// Upsert inserts the user or refreshes its name and email.
func (s *UserStore) Upsert(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now()
	if existing, ok := s.db.users[user.UserID]; ok {
		existing.Name = user.Name
		existing.Email = user.Email
		existing.UpdatedAt = now
		return nil
	}

	clone := *user
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.db.users[user.UserID] = &clone

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}

	clone := *u
	return &clone, nil
}
