package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// MessageStore implements store.MessageStore and store.ConversationStore using in-memory storage.
type MessageStore struct {
	db *db
}

// AppendInbound records an inbound message unless its external ID was already seen for the contact.
func (s *MessageStore) AppendInbound(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	if err := store.ValidateInbound(msg); err != nil {
		return nil, false, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.contacts[msg.ContactID]; !ok {
		return nil, false, store.ErrContactNotFound
	}

	for _, existing := range s.db.messages[msg.ContactID] {
		if existing.ExternalID == msg.ExternalID {
			clone := *existing
			return &clone, false, nil
		}
	}

	return s.db.appendMessage(msg), true, nil
}

// AppendOutbound records a message sent by a team member.
func (s *MessageStore) AppendOutbound(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := store.ValidateOutbound(msg); err != nil {
		return nil, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.contacts[msg.ContactID]; !ok {
		return nil, store.ErrContactNotFound
	}
	if _, ok := s.db.users[*msg.UserID]; !ok {
		return nil, store.ErrUserNotFound
	}

	for _, existing := range s.db.messages[msg.ContactID] {
		if existing.ExternalID == msg.ExternalID {
			return nil, store.ErrInvalidMessage
		}
	}

	return s.db.appendMessage(msg), nil
}

// appendMessage must be called with the write lock held.
func (d *db) appendMessage(msg *models.Message) *models.Message {
	d.seq++

	clone := *msg
	clone.Seq = d.seq
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	d.messages[msg.ContactID] = append(d.messages[msg.ContactID], &clone)

	out := clone
	return &out
}

// ListByContact returns the contact's messages ordered by (CreatedAt, Seq).
func (s *MessageStore) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*models.MessageView, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	msgs := s.db.messages[contactID]
	views := make([]*models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := &models.MessageView{Message: *m}
		if m.UserID != nil {
			if u, ok := s.db.users[*m.UserID]; ok {
				view.Sender = &models.Sender{Name: u.Name, Email: u.Email}
			}
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		if c := views[i].CreatedAt.Compare(views[j].CreatedAt); c != 0 {
			return c < 0
		}
		return views[i].Seq < views[j].Seq
	})

	return views, nil
}

// ListConversations returns one conversation per contact owned by the team.
func (s *MessageStore) ListConversations(ctx context.Context, teamID uuid.UUID) ([]*models.Conversation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.Conversation
	for _, c := range s.db.contacts {
		if c.TeamID != teamID {
			continue
		}

		conv := &models.Conversation{
			ContactID: c.ContactID,
			Phone:     c.Phone,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		}

		if latest := latestMessage(s.db.messages[c.ContactID]); latest != nil {
			content := latest.Content
			at := latest.CreatedAt
			conv.LastMessage = &content
			conv.LastMessageAt = &at
		}

		result = append(result, conv)
	}

	return result, nil
}

func latestMessage(msgs []*models.Message) *models.Message {
	var latest *models.Message
	for _, m := range msgs {
		if latest == nil {
			latest = m
			continue
		}
		c := m.CreatedAt.Compare(latest.CreatedAt)
		if c > 0 || (c == 0 && m.Seq > latest.Seq) {
			latest = m
		}
	}
	return latest
}
