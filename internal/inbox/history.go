package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// History reads a contact's messages on behalf of a team.
type History struct {
	contacts store.ContactStore
	messages store.MessageStore
}

// NewHistory creates the history reader.
func NewHistory(contacts store.ContactStore, messages store.MessageStore) *History {
	return &History{contacts: contacts, messages: messages}
}

// List returns the contact's messages oldest first. Contacts outside teamID are reported as not found.
func (h *History) List(ctx context.Context, teamID, contactID uuid.UUID) ([]*models.MessageView, error) {
	if contactID == uuid.Nil {
		return nil, fmt.Errorf("%w: contact id is required", ErrBadRequest)
	}

	contact, err := h.contacts.Get(ctx, contactID)
	if errors.Is(err, store.ErrContactNotFound) {
		return nil, fmt.Errorf("%w: contact %s", ErrNotFound, contactID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if contact.TeamID != teamID {
		return nil, fmt.Errorf("%w: contact %s", ErrNotFound, contactID)
	}

	views, err := h.messages.ListByContact(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return views, nil
}
