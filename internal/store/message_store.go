package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
)

// ErrInvalidMessage is returned when a message violates direction invariants.
var ErrInvalidMessage = errors.New("invalid message")

// MessageStore is the append-only ledger of messages per contact.
type MessageStore interface {
	// AppendInbound records an inbound message, deduplicated on (contact, external ID).
	// When the external ID was already recorded for the contact the existing message is
	// returned with created=false and nothing is written.
	// Returns ErrContactNotFound if the contact doesn't exist.
	AppendInbound(ctx context.Context, msg *models.Message) (stored *models.Message, created bool, err error)

	// AppendOutbound records a message sent by a team member.
	// Returns ErrContactNotFound if the contact doesn't exist.
	AppendOutbound(ctx context.Context, msg *models.Message) (*models.Message, error)

	// ListByContact returns every message for the contact ordered by (created_at, seq) ascending.
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]*models.MessageView, error)
}

// ConversationStore derives conversations from contacts and their latest messages.
type ConversationStore interface {
	// ListConversations returns one entry per contact owned by the team, carrying the
	// contact's latest message if any. Ordering is left to the caller.
	ListConversations(ctx context.Context, teamID uuid.UUID) ([]*models.Conversation, error)
}

// ValidateInbound checks the invariants of an inbound message before it is stored.
func ValidateInbound(msg *models.Message) error {
	switch {
	case msg.Direction != models.DirectionInbound:
		return errors.Join(ErrInvalidMessage, errors.New("direction must be INBOUND"))
	case msg.UserID != nil:
		return errors.Join(ErrInvalidMessage, errors.New("inbound message cannot carry a user"))
	case msg.ExternalID == "":
		return errors.Join(ErrInvalidMessage, errors.New("external ID is required"))
	}
	return nil
}

// ValidateOutbound checks the invariants of an outbound message before it is stored.
func ValidateOutbound(msg *models.Message) error {
	switch {
	case msg.Direction != models.DirectionOutbound:
		return errors.Join(ErrInvalidMessage, errors.New("direction must be OUTBOUND"))
	case msg.UserID == nil || *msg.UserID == "":
		return errors.Join(ErrInvalidMessage, errors.New("outbound message requires a user"))
	case msg.ExternalID == "":
		return errors.Join(ErrInvalidMessage, errors.New("external ID is required"))
	}
	return nil
}
