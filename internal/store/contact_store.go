package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
)

// Sentinel errors for contact store operations
var (
	ErrContactNotFound      = errors.New("contact not found")
	ErrContactAlreadyExists = errors.New("contact already exists")
)

// ContactStore defines the interface for contact storage operations.
// The store enforces at most one contact per (team, phone).
type ContactStore interface {
	// Create inserts a new contact.
	// Returns ErrContactAlreadyExists when another contact holds the same (team, phone),
	// and ErrTeamNotFound when the team doesn't exist.
	Create(ctx context.Context, contact *models.Contact) error

	// Get retrieves a contact by ID.
	// Returns ErrContactNotFound if the contact doesn't exist.
	Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error)

	// GetByPhone retrieves a contact by its team and raw address.
	// Returns ErrContactNotFound if there is no match.
	GetByPhone(ctx context.Context, teamID uuid.UUID, phone string) (*models.Contact, error)
}
