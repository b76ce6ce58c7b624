package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/telemetry"
)

// Onboarding gives every authenticated user exactly one team membership,
// creating a team with the user as ADMIN on first use.
type Onboarding struct {
	teams    store.TeamStore
	users    store.UserStore
	maxTries uint
}

// NewOnboarding creates the onboarding service.
func NewOnboarding(teams store.TeamStore, users store.UserStore) *Onboarding {
	return &Onboarding{teams: teams, users: users, maxTries: defaultMaxTries}
}

// Ensure records the identity and returns its membership, creating team and membership
// atomically when the user has none. Concurrent calls for one user yield a single team.
func (o *Onboarding) Ensure(ctx context.Context, identity *models.User) (*models.Membership, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthorized
	}

	user := *identity
	user.UpdatedAt = time.Now()
	if err := o.users.Upsert(ctx, &user); err != nil {
		return nil, fmt.Errorf("failed to record user: %w", err)
	}

	membership, err := backoff.Retry(ctx, func() (*models.Membership, error) {
		return o.getOrCreate(ctx, &user)
	}, backoff.WithBackOff(conflictBackOff()), backoff.WithMaxTries(o.maxTries))
	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("onboarding did not converge for user %s", user.UserID)
	}
	if err != nil {
		return nil, err
	}

	return membership, nil
}

func (o *Onboarding) getOrCreate(ctx context.Context, user *models.User) (*models.Membership, error) {
	membership, err := o.teams.GetMembershipByUser(ctx, user.UserID)
	if err == nil {
		return membership, nil
	}
	if !errors.Is(err, store.ErrMembershipNotFound) {
		return nil, backoff.Permanent(fmt.Errorf("failed to get membership: %w", err))
	}

	now := time.Now()
	team := &models.Team{
		TeamID:    uuid.Must(uuid.NewV7()),
		Name:      models.DefaultTeamName(user),
		CreatedAt: now,
		UpdatedAt: now,
	}
	membership = &models.Membership{
		MembershipID: uuid.Must(uuid.NewV7()),
		UserID:       user.UserID,
		TeamID:       team.TeamID,
		Role:         models.RoleAdmin,
		CreatedAt:    now,
	}

	err = o.teams.CreateWithMembership(ctx, team, membership)
	switch {
	case err == nil:
		telemetry.GetMetrics().TeamsOnboardedTotal.Add(ctx, 1)
		log.Ctx(ctx).Info().
			Str("team_id", team.TeamID.String()).
			Str("user_id", user.UserID).
			Msg("Onboarded user into new team")
		return membership, nil

	case errors.Is(err, store.ErrMembershipAlreadyExists):
		telemetry.GetMetrics().OnboardingConflictTotal.Add(ctx, 1)

		winner, err := o.teams.GetMembershipByUser(ctx, user.UserID)
		if err == nil {
			return winner, nil
		}
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrConflict
		}
		return nil, backoff.Permanent(fmt.Errorf("failed to re-read membership: %w", err))

	default:
		return nil, backoff.Permanent(fmt.Errorf("failed to create team: %w", err))
	}
}
