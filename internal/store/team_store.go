package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
)

// Sentinel errors for team store operations
var (
	ErrTeamNotFound             = errors.New("team not found")
	ErrTeamAlreadyExists        = errors.New("team already exists")
	ErrMembershipNotFound       = errors.New("membership not found")
	ErrMembershipAlreadyExists  = errors.New("membership already exists")
	ErrPhoneNumberAlreadyExists = errors.New("phone number already assigned to a team")
)

// TeamStore defines the interface for team and membership storage operations.
// Teams are the unit of data isolation: contacts and messages always belong to exactly one team.
type TeamStore interface {
	// Create creates a new team.
	// Returns ErrTeamAlreadyExists if the ID is taken, ErrPhoneNumberAlreadyExists if the number is.
	Create(ctx context.Context, team *models.Team) error

	// Get retrieves a team by ID.
	// Returns ErrTeamNotFound if the team doesn't exist.
	Get(ctx context.Context, teamID uuid.UUID) (*models.Team, error)

	// GetByPhoneNumber retrieves the team that owns a carrier number (bare E.164 form).
	// Returns ErrTeamNotFound if no team owns the number.
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Team, error)

	// Update updates a team's name and phone number.
	// Returns ErrTeamNotFound if the team doesn't exist.
	Update(ctx context.Context, team *models.Team) error

	// CreateWithMembership atomically creates a team and the membership binding its first user.
	// Returns ErrMembershipAlreadyExists if the user already has a membership, in which case
	// the team is not created either.
	CreateWithMembership(ctx context.Context, team *models.Team, membership *models.Membership) error

	// AddMembership binds a user to an existing team.
	// Returns ErrMembershipAlreadyExists if the user already belongs to a team, ErrTeamNotFound
	// or ErrUserNotFound if either side is missing.
	AddMembership(ctx context.Context, membership *models.Membership) error

	// GetMembershipByUser retrieves the membership for a user.
	// Returns ErrMembershipNotFound if the user has not been onboarded.
	GetMembershipByUser(ctx context.Context, userID string) (*models.Membership, error)
}
