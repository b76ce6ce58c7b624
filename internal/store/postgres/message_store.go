package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// MessageStore implements store.MessageStore using PostgreSQL.
// Rows are never updated or deleted.
type MessageStore struct {
	conn
}

const messageColumns = `message_id, seq, contact_id, user_id, content, direction, channel, status, external_id, created_at`

// AppendInbound inserts an inbound message unless (contact_id, external_id) already exists,
// in which case the stored row is returned with created=false.
func (s *MessageStore) AppendInbound(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	if err := store.ValidateInbound(msg); err != nil {
		return nil, false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO messages (message_id, contact_id, user_id, content, direction, channel, status, external_id, created_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, clock_timestamp()))
		ON CONFLICT ON CONSTRAINT messages_contact_id_external_id_key DO NOTHING
		RETURNING ` + messageColumns

	stored, err := scanMessage(s.pool.QueryRow(ctx, query,
		msg.MessageID,
		msg.ContactID,
		msg.Content,
		string(msg.Direction),
		string(msg.Channel),
		string(msg.Status),
		msg.ExternalID,
		optionalTime(msg.CreatedAt),
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to append inbound message: %w", mapPostgresError(err))
	}

	// Conflict: the carrier redelivered a message already recorded.
	query = `SELECT ` + messageColumns + ` FROM messages WHERE contact_id = $1 AND external_id = $2`

	existing, err := scanMessage(s.pool.QueryRow(ctx, query, msg.ContactID, msg.ExternalID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read duplicate inbound message: %w", err)
	}

	log.Debug().
		Str("contact_id", msg.ContactID.String()).
		Str("external_id", msg.ExternalID).
		Msg("Inbound message already recorded")

	return existing, false, nil
}

// AppendOutbound inserts a message sent by a team member.
func (s *MessageStore) AppendOutbound(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := store.ValidateOutbound(msg); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO messages (message_id, contact_id, user_id, content, direction, channel, status, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, clock_timestamp()))
		RETURNING ` + messageColumns

	stored, err := scanMessage(s.pool.QueryRow(ctx, query,
		msg.MessageID,
		msg.ContactID,
		msg.UserID,
		msg.Content,
		string(msg.Direction),
		string(msg.Channel),
		string(msg.Status),
		msg.ExternalID,
		optionalTime(msg.CreatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append outbound message: %w", mapPostgresError(err))
	}

	return stored, nil
}

// ListByContact returns the contact's messages ordered by (created_at, seq) with senders joined.
func (s *MessageStore) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*models.MessageView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT m.message_id, m.seq, m.contact_id, m.user_id, m.content, m.direction, m.channel,
		       m.status, m.external_id, m.created_at, u.name, u.email
		FROM messages m
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE m.contact_id = $1
		ORDER BY m.created_at ASC, m.seq ASC
	`

	rows, err := s.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var views []*models.MessageView
	for rows.Next() {
		var (
			view                       models.MessageView
			direction, channel, status string
			senderName, senderEmail    *string
		)
		err := rows.Scan(
			&view.MessageID,
			&view.Seq,
			&view.ContactID,
			&view.UserID,
			&view.Content,
			&direction,
			&channel,
			&status,
			&view.ExternalID,
			&view.CreatedAt,
			&senderName,
			&senderEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		view.Direction = models.Direction(direction)
		view.Channel = models.Channel(channel)
		view.Status = models.MessageStatus(status)
		if senderName != nil {
			view.Sender = &models.Sender{Name: *senderName, Email: deref(senderEmail)}
		}

		views = append(views, &view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return views, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m                          models.Message
		direction, channel, status string
	)
	err := row.Scan(
		&m.MessageID,
		&m.Seq,
		&m.ContactID,
		&m.UserID,
		&m.Content,
		&direction,
		&channel,
		&status,
		&m.ExternalID,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Direction = models.Direction(direction)
	m.Channel = models.Channel(channel)
	m.Status = models.MessageStatus(status)

	return &m, nil
}

// optionalTime maps the zero time to NULL so the database clock stamps the row.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
