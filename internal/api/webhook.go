package api

import (
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/wolfeidau/switchboard/internal/inbox"
	"github.com/wolfeidau/switchboard/internal/telemetry"
	"github.com/wolfeidau/switchboard/internal/twilio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const maxWebhookBody = 64 << 10

// handleTwilioWebhook records an inbound message. The signature is checked against the raw body
// before anything is parsed or stored.
func (s *Server) handleTwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metrics := telemetry.GetMetrics()
	metrics.WebhooksReceivedTotal.Add(ctx, 1)

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	fullURL := twilio.RequestURL(s.cfg.PublicBaseURL, s.cfg.TrustProxy, r)

	err = s.cfg.WebhookValidator.Validate(fullURL, rawBody, contentType, r.Header.Get(twilio.SignatureHeader))
	if err != nil {
		metrics.WebhooksRejectedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", err.Error())))
		logRequest(r).Warn().Err(err).Str("url", fullURL).Msg("Rejected webhook")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	in, err := parseInbound(rawBody, contentType)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	msg, created, err := s.ingestor.Ingest(ctx, in)
	if err != nil {
		status, _ := errorStatus(err)
		if status == http.StatusInternalServerError {
			logRequest(r).Error().Err(err).Str("message_sid", in.MessageSID).Msg("Failed to ingest webhook")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	logRequest(r).Debug().
		Str("message_sid", msg.ExternalID).
		Bool("created", created).
		Msg("Webhook ingested")

	if err := twilio.WriteTwiML(w, twilio.MessagingResponse{}); err != nil {
		logRequest(r).Error().Err(err).Msg("Failed to write TwiML response")
	}
}

func parseInbound(rawBody []byte, contentType string) (inbox.InboundMessage, error) {
	if twilio.IsJSON(contentType) {
		var payload struct {
			From       string `json:"From"`
			To         string `json:"To"`
			Body       string `json:"Body"`
			MessageSID string `json:"MessageSid"`
		}
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			return inbox.InboundMessage{}, err
		}
		return inbox.InboundMessage(payload), nil
	}

	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return inbox.InboundMessage{}, err
	}
	return inbox.InboundMessage{
		From:       form.Get("From"),
		To:         form.Get("To"),
		Body:       form.Get("Body"),
		MessageSID: form.Get("MessageSid"),
	}, nil
}
