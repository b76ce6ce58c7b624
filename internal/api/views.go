package api

import (
	"time"

	"github.com/wolfeidau/switchboard/internal/models"
)

type conversationView struct {
	ID            string     `json:"id"`
	Phone         string     `json:"phone"`
	FirstName     *string    `json:"firstName"`
	LastName      *string    `json:"lastName"`
	LastMessage   string     `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

type senderView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type messageView struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Direction string      `json:"direction"`
	Channel   string      `json:"channel"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	User      *senderView `json:"user"`
}

type sentMessageView struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contactId"`
	Content   string    `json:"content"`
	Direction string    `json:"direction"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	TwilioSID string    `json:"twilioSid"`
	UserID    *string   `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func toConversationViews(convs []*models.Conversation) []conversationView {
	views := make([]conversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, conversationView{
			ID:            c.ContactID.String(),
			Phone:         c.Phone,
			FirstName:     c.FirstName,
			LastName:      c.LastName,
			LastMessage:   c.Preview(),
			LastMessageAt: c.LastMessageAt,
		})
	}
	return views
}

func toMessageViews(msgs []*models.MessageView) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		view := messageView{
			ID:        m.MessageID.String(),
			Content:   m.Content,
			Direction: string(m.Direction),
			Channel:   string(m.Channel),
			Status:    string(m.Status),
			CreatedAt: m.CreatedAt,
		}
		if m.Sender != nil {
			view.User = &senderView{Name: m.Sender.Name, Email: m.Sender.Email}
		}
		views = append(views, view)
	}
	return views
}

func toSentMessageView(m *models.Message) sentMessageView {
	return sentMessageView{
		ID:        m.MessageID.String(),
		ContactID: m.ContactID.String(),
		Content:   m.Content,
		Direction: string(m.Direction),
		Channel:   string(m.Channel),
		Status:    string(m.Status),
		TwilioSID: m.ExternalID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
	}
}
