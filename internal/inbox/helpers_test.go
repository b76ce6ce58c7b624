package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/twilio"
)

// teamFixture is a team with one ADMIN member.
type teamFixture struct {
	team       *models.Team
	user       *models.User
	membership *models.Membership
}

func createTeam(t *testing.T, stores store.Stores, phone, userID string) teamFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	user := &models.User{UserID: userID, Name: "Ada Lovelace", Email: "ada@example.com"}
	require.NoError(t, stores.Users.Upsert(ctx, user))

	team := &models.Team{TeamID: uuid.Must(uuid.NewV7()), Name: "Acme", CreatedAt: now, UpdatedAt: now}
	if phone != "" {
		team.PhoneNumber = &phone
	}
	membership := &models.Membership{
		MembershipID: uuid.Must(uuid.NewV7()),
		UserID:       userID,
		TeamID:       team.TeamID,
		Role:         models.RoleAdmin,
		CreatedAt:    now,
	}
	require.NoError(t, stores.Teams.CreateWithMembership(ctx, team, membership))

	return teamFixture{team: team, user: user, membership: membership}
}

func createContact(t *testing.T, stores store.Stores, teamID uuid.UUID, phone string) *models.Contact {
	t.Helper()
	now := time.Now()
	contact := &models.Contact{ContactID: uuid.Must(uuid.NewV7()), TeamID: teamID, Phone: phone, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, stores.Contacts.Create(context.Background(), contact))
	return contact
}

type fakeCarrier struct {
	mu    sync.Mutex
	calls []twilio.SendMessageParams
	err   error
}

func (f *fakeCarrier) SendMessage(ctx context.Context, params twilio.SendMessageParams) (*twilio.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &twilio.Message{SID: fmt.Sprintf("SMOUT%d", len(f.calls)), Status: "queued"}, nil
}

var errCarrierDown = errors.New("carrier unavailable")
