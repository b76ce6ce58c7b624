package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/telemetry"
)

// ContactResolver finds or creates the contact for an address within a team.
// Concurrent resolutions of the same (team, address) all return the same contact.
type ContactResolver struct {
	contacts store.ContactStore
	maxTries uint
}

// NewContactResolver creates a resolver over the contact store.
func NewContactResolver(contacts store.ContactStore) *ContactResolver {
	return &ContactResolver{contacts: contacts, maxTries: defaultMaxTries}
}

// Resolve returns the team's contact for address, creating it when absent.
func (r *ContactResolver) Resolve(ctx context.Context, teamID uuid.UUID, address string) (*models.Contact, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: contact address is required", ErrBadRequest)
	}

	contact, err := backoff.Retry(ctx, func() (*models.Contact, error) {
		return r.lookupOrCreate(ctx, teamID, address)
	}, backoff.WithBackOff(conflictBackOff()), backoff.WithMaxTries(r.maxTries))
	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("contact resolution did not converge for team %s", teamID)
	}
	if err != nil {
		return nil, err
	}

	return contact, nil
}

func (r *ContactResolver) lookupOrCreate(ctx context.Context, teamID uuid.UUID, address string) (*models.Contact, error) {
	contact, err := r.contacts.GetByPhone(ctx, teamID, address)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, store.ErrContactNotFound) {
		return nil, backoff.Permanent(fmt.Errorf("failed to look up contact: %w", err))
	}

	now := time.Now()
	contact = &models.Contact{
		ContactID: uuid.Must(uuid.NewV7()),
		TeamID:    teamID,
		Phone:     address,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = r.contacts.Create(ctx, contact)
	switch {
	case err == nil:
		telemetry.GetMetrics().ContactsCreatedTotal.Add(ctx, 1)
		log.Ctx(ctx).Debug().
			Str("contact_id", contact.ContactID.String()).
			Str("channel", string(contact.Channel())).
			Msg("Created contact")
		return contact, nil

	case errors.Is(err, store.ErrContactAlreadyExists):
		telemetry.GetMetrics().ContactConflictsTotal.Add(ctx, 1)

		// Another request created it between our lookup and insert; the winner is authoritative.
		winner, err := r.contacts.GetByPhone(ctx, teamID, address)
		if err == nil {
			return winner, nil
		}
		if errors.Is(err, store.ErrContactNotFound) {
			return nil, ErrConflict
		}
		return nil, backoff.Permanent(fmt.Errorf("failed to re-read contact: %w", err))

	case errors.Is(err, store.ErrTeamNotFound):
		return nil, backoff.Permanent(fmt.Errorf("%w: team %s", ErrNotFound, teamID))

	default:
		return nil, backoff.Permanent(fmt.Errorf("failed to create contact: %w", err))
	}
}
