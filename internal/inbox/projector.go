package inbox

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// Projector builds the team's conversation list.
type Projector struct {
	conversations store.ConversationStore
}

// NewProjector creates a projector over the conversation store.
func NewProjector(conversations store.ConversationStore) *Projector {
	return &Projector{conversations: conversations}
}

// List returns one conversation per contact of the team, most recent activity first.
func (p *Projector) List(ctx context.Context, teamID uuid.UUID) ([]*models.Conversation, error) {
	convs, err := p.conversations.ListConversations(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	SortConversations(convs)
	return convs, nil
}

// SortConversations orders by latest message time descending, contacts without messages
// last, ties broken by contact id ascending. The order is total so repeated reads agree.
func SortConversations(convs []*models.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		ti, tj := activityKey(convs[i]), activityKey(convs[j])
		if ti != tj {
			return ti > tj
		}
		return bytes.Compare(convs[i].ContactID[:], convs[j].ContactID[:]) < 0
	})
}

func activityKey(c *models.Conversation) int64 {
	if c.LastMessageAt == nil {
		return math.MinInt64
	}
	return c.LastMessageAt.UnixNano()
}
