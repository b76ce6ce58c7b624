package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// ContactStore implements store.ContactStore using PostgreSQL.
type ContactStore struct {
	conn
}

const contactColumns = `contact_id, team_id, phone, first_name, last_name, created_at, updated_at`

// Create inserts a contact. The (team_id, phone) constraint decides concurrent creators.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO contacts (` + contactColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		contact.ContactID,
		contact.TeamID,
		contact.Phone,
		contact.FirstName,
		contact.LastName,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintContactTeamPhone) {
			return store.ErrContactAlreadyExists
		}
		return fmt.Errorf("failed to create contact: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("contact_id", contact.ContactID.String()).
		Str("team_id", contact.TeamID.String()).
		Msg("Created contact")

	return nil
}

// Get retrieves a contact by ID.
func (s *ContactStore) Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE contact_id = $1`

	contact, err := scanContact(s.pool.QueryRow(ctx, query, contactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return contact, nil
}

// GetByPhone retrieves a contact by team and raw carrier address.
func (s *ContactStore) GetByPhone(ctx context.Context, teamID uuid.UUID, phone string) (*models.Contact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE team_id = $1 AND phone = $2`

	contact, err := scanContact(s.pool.QueryRow(ctx, query, teamID, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact by phone: %w", err)
	}

	return contact, nil
}

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(
		&c.ContactID,
		&c.TeamID,
		&c.Phone,
		&c.FirstName,
		&c.LastName,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
