package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/telemetry"
	"github.com/wolfeidau/switchboard/internal/twilio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Carrier sends a message and returns the carrier's record of it.
type Carrier interface {
	SendMessage(ctx context.Context, params twilio.SendMessageParams) (*twilio.Message, error)
}

// Dispatcher sends team replies through the carrier and records them once accepted.
type Dispatcher struct {
	teams       store.TeamStore
	contacts    store.ContactStore
	messages    store.MessageStore
	carrier     Carrier
	defaultFrom string
}

// NewDispatcher creates a dispatcher. defaultFrom is the sender number for teams without one.
func NewDispatcher(stores store.Stores, carrier Carrier, defaultFrom string) *Dispatcher {
	return &Dispatcher{
		teams:       stores.Teams,
		contacts:    stores.Contacts,
		messages:    stores.Messages,
		carrier:     carrier,
		defaultFrom: defaultFrom,
	}
}

// Send delivers body to the contact and appends the OUTBOUND message.
// A carrier failure returns ErrDispatchFailed and writes nothing.
func (d *Dispatcher) Send(ctx context.Context, sender *models.User, membership *models.Membership, contactID uuid.UUID, body string) (*models.Message, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inbox.Send")
	defer span.End()

	if sender == nil || membership == nil || sender.UserID != membership.UserID {
		return nil, ErrUnauthorized
	}
	if contactID == uuid.Nil {
		return nil, fmt.Errorf("%w: contact id is required", ErrBadRequest)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrBadRequest)
	}

	contact, err := d.contacts.Get(ctx, contactID)
	if errors.Is(err, store.ErrContactNotFound) {
		return nil, fmt.Errorf("%w: contact %s", ErrNotFound, contactID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	// Contacts of other teams are indistinguishable from missing ones.
	if contact.TeamID != membership.TeamID || contact.Phone == "" {
		return nil, fmt.Errorf("%w: contact %s", ErrNotFound, contactID)
	}

	channel := contact.Channel()
	span.SetAttributes(
		attribute.String("contact.id", contact.ContactID.String()),
		attribute.String("message.channel", string(channel)),
	)

	from, err := d.senderNumber(ctx, membership.TeamID)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.GetMetrics()
	start := time.Now()

	sent, err := d.carrier.SendMessage(ctx, twilio.SendMessageParams{
		From: models.AddressForChannel(from, channel),
		To:   contact.Phone,
		Body: body,
	})
	metrics.DispatchDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metricChannel(channel))
	if err != nil {
		metrics.DispatchFailuresTotal.Add(ctx, 1, metricChannel(channel))
		span.SetStatus(codes.Error, err.Error())
		log.Ctx(ctx).Warn().Err(err).
			Str("contact_id", contact.ContactID.String()).
			Msg("Carrier rejected outbound message")
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	userID := sender.UserID
	msg, err := d.messages.AppendOutbound(ctx, &models.Message{
		MessageID:  uuid.Must(uuid.NewV7()),
		ContactID:  contact.ContactID,
		UserID:     &userID,
		Content:    body,
		Direction:  models.DirectionOutbound,
		Channel:    channel,
		Status:     models.StatusSent,
		ExternalID: sent.SID,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		// The carrier has the message; keep the SID so it can be reconciled by hand.
		log.Ctx(ctx).Error().Err(err).
			Str("contact_id", contact.ContactID.String()).
			Str("message_sid", sent.SID).
			Msg("Sent message could not be recorded")
		return nil, fmt.Errorf("failed to append outbound message: %w", err)
	}

	metrics.OutboundMessagesTotal.Add(ctx, 1, metricChannel(channel))

	log.Ctx(ctx).Info().
		Str("contact_id", contact.ContactID.String()).
		Str("message_sid", sent.SID).
		Msg("Dispatched outbound message")

	return msg, nil
}

func (d *Dispatcher) senderNumber(ctx context.Context, teamID uuid.UUID) (string, error) {
	team, err := d.teams.Get(ctx, teamID)
	if err != nil {
		return "", fmt.Errorf("failed to get team: %w", err)
	}
	if team.PhoneNumber != nil && *team.PhoneNumber != "" {
		return *team.PhoneNumber, nil
	}
	if d.defaultFrom == "" {
		return "", fmt.Errorf("team %s has no sender number and no default is configured", teamID)
	}
	return d.defaultFrom, nil
}
