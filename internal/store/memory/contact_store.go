package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// ContactStore implements store.ContactStore using in-memory storage.
type ContactStore struct {
	db *db
}

// Create inserts a new contact, enforcing uniqueness of (team, phone).
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.teams[contact.TeamID]; !ok {
		return store.ErrTeamNotFound
	}

	for _, c := range s.db.contacts {
		if c.ContactID == contact.ContactID || (c.TeamID == contact.TeamID && c.Phone == contact.Phone) {
			return store.ErrContactAlreadyExists
		}
	}

	clone := *contact
	s.db.contacts[contact.ContactID] = &clone

	return nil
}

// Get retrieves a contact by ID.
func (s *ContactStore) Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c, ok := s.db.contacts[contactID]
	if !ok {
		return nil, store.ErrContactNotFound
	}

	clone := *c
	return &clone, nil
}

// GetByPhone retrieves a contact by team and raw address.
func (s *ContactStore) GetByPhone(ctx context.Context, teamID uuid.UUID, phone string) (*models.Contact, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, c := range s.db.contacts {
		if c.TeamID == teamID && c.Phone == phone {
			clone := *c
			return &clone, nil
		}
	}

	return nil, store.ErrContactNotFound
}
