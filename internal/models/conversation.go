package models

import (
	"time"

	"github.com/google/uuid"
)

// NoMessagesYet is the preview shown for a contact without messages.
const NoMessagesYet = "No messages yet"

// Conversation is a read projection of a contact and its latest message.
// It is never stored.
type Conversation struct {
	ContactID     uuid.UUID
	Phone         string
	FirstName     *string
	LastName      *string
	LastMessage   *string    // nil when the contact has no messages
	LastMessageAt *time.Time // nil when the contact has no messages
}

// Preview returns the latest message content or the no-messages placeholder.
func (c *Conversation) Preview() string {
	if c.LastMessage == nil {
		return NoMessagesYet
	}
	return *c.LastMessage
}
