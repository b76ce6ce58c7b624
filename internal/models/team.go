package models

import (
	"time"

	"github.com/google/uuid"
)

// Team represents a tenant in the system.
// A team owns contacts and, through them, messages.
type Team struct {
	TeamID      uuid.UUID // UUIDv7
	Name        string
	PhoneNumber *string // Carrier number routed to this team (E.164), nil when unassigned
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role is the role a user holds within a team.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Membership binds a user to exactly one team.
type Membership struct {
	MembershipID uuid.UUID // UUIDv7
	UserID       string    // FK to users, unique
	TeamID       uuid.UUID // FK to teams
	Role         Role
	CreatedAt    time.Time
}

// DefaultTeamName returns the name given to a team created for a first-seen user.
func DefaultTeamName(u *User) string {
	owner := u.Name
	if owner == "" {
		owner = u.Email
	}
	if owner == "" {
		owner = u.UserID
	}
	return owner + "'s Team"
}
