package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/switchboard/internal/store"
)

// Constraint names from migrations/1_initial_schema.sql.
const (
	constraintTeamPhoneNumber       = "teams_phone_number_key"
	constraintMembershipUser        = "memberships_user_id_key"
	constraintContactTeamPhone      = "contacts_team_id_phone_key"
	constraintMessageExternalID     = "messages_contact_id_external_id_key"
	constraintContactTeamFK         = "contacts_team_id_fkey"
	constraintMessageContactFK      = "messages_contact_id_fkey"
	constraintMessageUserFK         = "messages_user_id_fkey"
	constraintMembershipUserFK      = "memberships_user_id_fkey"
	constraintMembershipTeamFK      = "memberships_team_id_fkey"
	constraintMessageSenderDirCheck = "messages_sender_direction_check"
)

// mapPostgresError maps PostgreSQL-specific errors to store sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintContactTeamPhone:
			return store.ErrContactAlreadyExists
		case constraintMembershipUser:
			return store.ErrMembershipAlreadyExists
		case constraintTeamPhoneNumber:
			return store.ErrPhoneNumberAlreadyExists
		case "teams_pkey":
			return store.ErrTeamAlreadyExists
		case "contacts_pkey":
			return store.ErrContactAlreadyExists
		case constraintMessageExternalID:
			return fmt.Errorf("%w: duplicate external ID for contact", store.ErrInvalidMessage)
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintMessageContactFK:
			return fmt.Errorf("%w: %s", store.ErrContactNotFound, pgErr.Detail)
		case constraintContactTeamFK, constraintMembershipTeamFK:
			return fmt.Errorf("%w: %s", store.ErrTeamNotFound, pgErr.Detail)
		case constraintMessageUserFK, constraintMembershipUserFK:
			return fmt.Errorf("%w: %s", store.ErrUserNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == constraintMessageSenderDirCheck {
			return fmt.Errorf("%w: sender does not match direction", store.ErrInvalidMessage)
		}
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isUniqueViolation reports whether err is a unique violation on the named constraint.
// An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
