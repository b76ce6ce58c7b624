package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
)

// ConversationStore implements store.ConversationStore using PostgreSQL.
type ConversationStore struct {
	conn
}

// ListConversations returns every contact of the team with its latest message, if any.
// The lateral subquery walks idx_messages_contact_order backwards, one row per contact.
func (s *ConversationStore) ListConversations(ctx context.Context, teamID uuid.UUID) ([]*models.Conversation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT c.contact_id, c.phone, c.first_name, c.last_name, lm.content, lm.created_at
		FROM contacts c
		LEFT JOIN LATERAL (
			SELECT m.content, m.created_at
			FROM messages m
			WHERE m.contact_id = c.contact_id
			ORDER BY m.created_at DESC, m.seq DESC
			LIMIT 1
		) lm ON true
		WHERE c.team_id = $1
	`

	rows, err := s.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ContactID,
			&conv.Phone,
			&conv.FirstName,
			&conv.LastName,
			&conv.LastMessage,
			&conv.LastMessageAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}
