package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InboundMessage is the authenticated content of a carrier webhook.
type InboundMessage struct {
	From       string // sender address, may carry the whatsapp: prefix
	To         string // the team's carrier address
	Body       string
	MessageSID string
}

// Validate checks the required webhook fields.
func (m InboundMessage) Validate() error {
	var missing []string
	if m.From == "" {
		missing = append(missing, "From")
	}
	if m.To == "" {
		missing = append(missing, "To")
	}
	if m.Body == "" {
		missing = append(missing, "Body")
	}
	if m.MessageSID == "" {
		missing = append(missing, "MessageSid")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields %v", ErrBadRequest, missing)
	}
	return nil
}

// Ingestor records inbound messages against the team that owns the destination number.
type Ingestor struct {
	teams         store.TeamStore
	messages      store.MessageStore
	resolver      *ContactResolver
	defaultTeamID uuid.UUID
}

// NewIngestor creates an ingestor. defaultTeamID receives messages for numbers no team owns;
// uuid.Nil rejects them instead.
func NewIngestor(stores store.Stores, resolver *ContactResolver, defaultTeamID uuid.UUID) *Ingestor {
	return &Ingestor{
		teams:         stores.Teams,
		messages:      stores.Messages,
		resolver:      resolver,
		defaultTeamID: defaultTeamID,
	}
}

// Ingest records an inbound message. A redelivered MessageSID returns the message already
// stored with created=false.
func (i *Ingestor) Ingest(ctx context.Context, in InboundMessage) (*models.Message, bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inbox.Ingest")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	channel := models.ChannelForAddress(in.From)
	span.SetAttributes(
		attribute.String("message.sid", in.MessageSID),
		attribute.String("message.channel", string(channel)),
	)

	teamID, err := i.routeTeam(ctx, in.To)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	contact, err := i.resolver.Resolve(ctx, teamID, in.From)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	msg, created, err := i.messages.AppendInbound(ctx, &models.Message{
		MessageID:  uuid.Must(uuid.NewV7()),
		ContactID:  contact.ContactID,
		Content:    in.Body,
		Direction:  models.DirectionInbound,
		Channel:    channel,
		Status:     models.StatusUnread,
		ExternalID: in.MessageSID,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("failed to append inbound message: %w", err)
	}

	metrics := telemetry.GetMetrics()
	if created {
		metrics.InboundMessagesTotal.Add(ctx, 1, metricChannel(channel))
	} else {
		metrics.InboundDuplicatesTotal.Add(ctx, 1, metricChannel(channel))
	}

	log.Ctx(ctx).Info().
		Str("team_id", teamID.String()).
		Str("contact_id", contact.ContactID.String()).
		Str("message_sid", in.MessageSID).
		Bool("created", created).
		Msg("Ingested inbound message")

	return msg, created, nil
}

func (i *Ingestor) routeTeam(ctx context.Context, to string) (uuid.UUID, error) {
	team, err := i.teams.GetByPhoneNumber(ctx, models.BareNumber(to))
	if err == nil {
		return team.TeamID, nil
	}
	if !errors.Is(err, store.ErrTeamNotFound) {
		return uuid.Nil, fmt.Errorf("failed to route inbound message: %w", err)
	}
	if i.defaultTeamID != uuid.Nil {
		return i.defaultTeamID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: no team owns the destination number", ErrNotFound)
}
