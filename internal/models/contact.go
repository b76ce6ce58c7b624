package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is an external party reachable on a phone or channel address.
// At most one contact exists per (TeamID, Phone).
type Contact struct {
	ContactID uuid.UUID // UUIDv7
	TeamID    uuid.UUID // FK to teams
	Phone     string    // Raw carrier address, e.g. "+15550001111" or "whatsapp:+15550001111"
	FirstName *string
	LastName  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel returns the channel the contact is reached on.
func (c *Contact) Channel() Channel {
	return ChannelForAddress(c.Phone)
}
