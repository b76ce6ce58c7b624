package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	twiliogo "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrCircuitOpen is returned without calling the carrier while the breaker is open.
var ErrCircuitOpen = errors.New("carrier circuit breaker open")

// ClientConfig configures the REST client.
type ClientConfig struct {
	AccountSID string
	AuthToken  string

	// Timeout bounds a single send. Default: 15s
	Timeout time.Duration

	// HTTPClient replaces the client the SDK sends requests with.
	HTTPClient *http.Client
}

// Validate checks that credentials are present.
func (c *ClientConfig) Validate() error {
	if c.AccountSID == "" {
		return fmt.Errorf("account SID is required")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	return nil
}

// SendMessageParams are the fields of a Messages create call.
type SendMessageParams struct {
	From string
	To   string
	Body string
}

// Message is the subset of the Message resource returned by the API.
type Message struct {
	SID         string
	Status      string
	From        string
	To          string
	ErrorCode   *int
	DateCreated string
}

// APIError is the error document returned for non-2xx responses.
type APIError struct {
	Status   int
	Code     int
	Message  string
	MoreInfo string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio api error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// Client sends messages through the Messages REST API.
// Each send is a single attempt; repeated server-side failures open a circuit breaker.
type Client struct {
	messages *openapi.ApiService
	cb       *gobreaker.CircuitBreaker[*Message]
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)

	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{Client: base})

	cb := gobreaker.NewCircuitBreaker[*Message](gobreaker.Settings{
		Name:        "twilio-messages",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections by the API (bad number, unverified sender) say nothing about carrier health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})

	return &Client{messages: rest.Api, cb: cb}, nil
}

// SendMessage creates an outbound message. It never retries.
// The SDK call takes no context, so ctx is only checked before sending; the HTTP client
// timeout bounds the call itself.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := c.cb.Execute(func() (*Message, error) {
		return c.sendMessage(params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return msg, err
}

func (c *Client) sendMessage(params SendMessageParams) (*Message, error) {
	create := &openapi.CreateMessageParams{}
	create.SetFrom(params.From)
	create.SetTo(params.To)
	create.SetBody(params.Body)

	resp, err := c.messages.CreateMessage(create)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return nil, &APIError{
				Status:   restErr.Status,
				Code:     restErr.Code,
				Message:  restErr.Message,
				MoreInfo: restErr.MoreInfo,
			}
		}
		return nil, fmt.Errorf("failed to call messages api: %w", err)
	}

	msg := &Message{
		SID:         deref(resp.Sid),
		Status:      deref(resp.Status),
		From:        deref(resp.From),
		To:          deref(resp.To),
		ErrorCode:   resp.ErrorCode,
		DateCreated: deref(resp.DateCreated),
	}
	if msg.SID == "" {
		return nil, fmt.Errorf("messages api returned no sid")
	}

	log.Debug().Str("sid", msg.SID).Str("status", msg.Status).Msg("Sent message")

	return msg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
