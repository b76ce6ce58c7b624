package inbox

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store/memory"
)

func TestDispatcherSend(t *testing.T) {
	stores := memory.New()
	fx := createTeam(t, stores, "+15559998888", "auth0|1")
	contact := createContact(t, stores, fx.team.TeamID, "+15550001111")
	carrier := &fakeCarrier{}
	d := NewDispatcher(stores, carrier, "")
	ctx := context.Background()

	msg, err := d.Send(ctx, fx.user, fx.membership, contact.ContactID, "Hello")
	require.NoError(t, err)
	require.Equal(t, models.DirectionOutbound, msg.Direction)
	require.Equal(t, models.StatusSent, msg.Status)
	require.Equal(t, models.ChannelSMS, msg.Channel)
	require.Equal(t, "SMOUT1", msg.ExternalID)
	require.Equal(t, "Hello", msg.Content)
	require.Equal(t, fx.user.UserID, *msg.UserID)

	require.Len(t, carrier.calls, 1)
	require.Equal(t, "+15559998888", carrier.calls[0].From)
	require.Equal(t, "+15550001111", carrier.calls[0].To)
	require.Equal(t, "Hello", carrier.calls[0].Body)

	views, err := stores.Messages.ListByContact(ctx, contact.ContactID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, &models.Sender{Name: "Ada Lovelace", Email: "ada@example.com"}, views[0].Sender)
}

func TestDispatcherWhatsAppSender(t *testing.T) {
	stores := memory.New()
	fx := createTeam(t, stores, "", "auth0|1")
	contact := createContact(t, stores, fx.team.TeamID, "whatsapp:+15550001111")
	carrier := &fakeCarrier{}
	d := NewDispatcher(stores, carrier, "+15557770000")

	msg, err := d.Send(context.Background(), fx.user, fx.membership, contact.ContactID, "Hola")
	require.NoError(t, err)
	require.Equal(t, models.ChannelWhatsApp, msg.Channel)

	require.Equal(t, "whatsapp:+15557770000", carrier.calls[0].From)
	require.Equal(t, "whatsapp:+15550001111", carrier.calls[0].To)
}

func TestDispatcherCarrierFailureWritesNothing(t *testing.T) {
	stores := memory.New()
	fx := createTeam(t, stores, "+15559998888", "auth0|1")
	contact := createContact(t, stores, fx.team.TeamID, "+15550001111")
	d := NewDispatcher(stores, &fakeCarrier{err: errCarrierDown}, "")
	ctx := context.Background()

	_, err := d.Send(ctx, fx.user, fx.membership, contact.ContactID, "Hello")
	require.ErrorIs(t, err, ErrDispatchFailed)

	views, err := stores.Messages.ListByContact(ctx, contact.ContactID)
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestDispatcherErrors(t *testing.T) {
	stores := memory.New()
	fx := createTeam(t, stores, "+15559998888", "auth0|1")
	other := createTeam(t, stores, "+15558887777", "auth0|2")
	contact := createContact(t, stores, fx.team.TeamID, "+15550001111")
	foreign := createContact(t, stores, other.team.TeamID, "+15550002222")
	carrier := &fakeCarrier{}
	d := NewDispatcher(stores, carrier, "")

	tests := []struct {
		name      string
		contactID uuid.UUID
		body      string
		wantErr   error
	}{
		{name: "blank body", contactID: contact.ContactID, body: "   ", wantErr: ErrBadRequest},
		{name: "missing contact id", contactID: uuid.Nil, body: "hi", wantErr: ErrBadRequest},
		{name: "unknown contact", contactID: uuid.Must(uuid.NewV7()), body: "hi", wantErr: ErrNotFound},
		{name: "contact of another team", contactID: foreign.ContactID, body: "hi", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Send(context.Background(), fx.user, fx.membership, tt.contactID, tt.body)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.Empty(t, carrier.calls)
}

func TestDispatcherNoSenderNumber(t *testing.T) {
	stores := memory.New()
	fx := createTeam(t, stores, "", "auth0|1")
	contact := createContact(t, stores, fx.team.TeamID, "+15550001111")
	carrier := &fakeCarrier{}
	d := NewDispatcher(stores, carrier, "")

	_, err := d.Send(context.Background(), fx.user, fx.membership, contact.ContactID, "hi")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDispatchFailed)
	require.Empty(t, carrier.calls)
}
