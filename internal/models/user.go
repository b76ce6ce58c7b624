package models

import "time"

// User is a team member as asserted by the identity provider.
// UserID is the provider's subject claim and is stable across logins.
type User struct {
	UserID    string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
