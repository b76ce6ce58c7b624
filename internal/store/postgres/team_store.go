package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// TeamStore implements store.TeamStore using PostgreSQL.
type TeamStore struct {
	conn
}

const teamColumns = `team_id, name, phone_number, created_at, updated_at`

// Create creates a new team in the database.
func (s *TeamStore) Create(ctx context.Context, team *models.Team) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := insertTeam(ctx, s.pool, team); err != nil {
		return err
	}

	log.Debug().
		Str("team_id", team.TeamID.String()).
		Str("name", team.Name).
		Msg("Created team")

	return nil
}

// Get retrieves a team by ID.
func (s *TeamStore) Get(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + teamColumns + ` FROM teams WHERE team_id = $1`

	team, err := scanTeam(s.pool.QueryRow(ctx, query, teamID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return team, nil
}

// GetByPhoneNumber retrieves the team that owns a carrier number.
func (s *TeamStore) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Team, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + teamColumns + ` FROM teams WHERE phone_number = $1`

	team, err := scanTeam(s.pool.QueryRow(ctx, query, phoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team by phone number: %w", err)
	}

	return team, nil
}

// Update updates a team's name and phone number.
func (s *TeamStore) Update(ctx context.Context, team *models.Team) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE teams
		SET name = $2, phone_number = $3, updated_at = $4
		WHERE team_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		team.TeamID,
		team.Name,
		team.PhoneNumber,
		team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTeamNotFound
	}

	log.Debug().
		Str("team_id", team.TeamID.String()).
		Msg("Updated team")

	return nil
}

// CreateWithMembership creates a team and its first membership in one transaction.
// The unique constraint on memberships.user_id decides concurrent onboardings of the same user.
func (s *TeamStore) CreateWithMembership(ctx context.Context, team *models.Team, membership *models.Membership) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := insertTeam(ctx, tx, team); err != nil {
		return err
	}

	if err := insertMembership(ctx, tx, membership); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Str("team_id", team.TeamID.String()).
		Str("user_id", membership.UserID).
		Msg("Created team with membership")

	return nil
}

// AddMembership binds a user to an existing team.
func (s *TeamStore) AddMembership(ctx context.Context, membership *models.Membership) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := insertMembership(ctx, s.pool, membership); err != nil {
		return err
	}

	log.Debug().
		Str("team_id", membership.TeamID.String()).
		Str("user_id", membership.UserID).
		Str("role", string(membership.Role)).
		Msg("Added membership")

	return nil
}

// GetMembershipByUser retrieves the membership for a user.
func (s *TeamStore) GetMembershipByUser(ctx context.Context, userID string) (*models.Membership, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT membership_id, user_id, team_id, role, created_at
		FROM memberships
		WHERE user_id = $1
	`

	var (
		m    models.Membership
		role string
	)
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&m.MembershipID,
		&m.UserID,
		&m.TeamID,
		&role,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = models.Role(role)

	return &m, nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTeam(ctx context.Context, db execer, team *models.Team) error {
	query := `
		INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := db.Exec(ctx, query,
		team.TeamID,
		team.Name,
		team.PhoneNumber,
		team.CreatedAt,
		team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", mapPostgresError(err))
	}
	return nil
}

func insertMembership(ctx context.Context, db execer, membership *models.Membership) error {
	query := `
		INSERT INTO memberships (membership_id, user_id, team_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := db.Exec(ctx, query,
		membership.MembershipID,
		membership.UserID,
		membership.TeamID,
		string(membership.Role),
		membership.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintMembershipUser) {
			return store.ErrMembershipAlreadyExists
		}
		return fmt.Errorf("failed to create membership: %w", mapPostgresError(err))
	}
	return nil
}

func scanTeam(row pgx.Row) (*models.Team, error) {
	var team models.Team
	err := row.Scan(
		&team.TeamID,
		&team.Name,
		&team.PhoneNumber,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &team, nil
}
