package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/switchboard/internal/models"
)

// ErrUserNotFound is returned when a user record doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// UserStore keeps a local copy of identities asserted by the identity provider.
type UserStore interface {
	// Upsert inserts the user or refreshes its name and email.
	Upsert(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID string) (*models.User, error)
}
