// Package api exposes the inbox over HTTP: the carrier webhook and the team-member JSON API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/switchboard/internal/http"
	"github.com/wolfeidau/switchboard/internal/inbox"
	"github.com/wolfeidau/switchboard/internal/logger"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/twilio"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the API to its collaborators.
type Config struct {
	Stores  store.Stores
	Carrier inbox.Carrier

	// WebhookValidator checks carrier signatures. Required.
	WebhookValidator *twilio.RequestValidator
	// PublicBaseURL is the scheme and host the carrier calls, when it differs from what this
	// process sees.
	PublicBaseURL string
	// DefaultTeamID receives inbound messages for numbers no team owns.
	DefaultTeamID uuid.UUID
	// DefaultFromNumber is the sender for teams without their own number.
	DefaultFromNumber string

	// Authenticate rejects unauthenticated API requests and stores the user in the context.
	Authenticate func(http.Handler) http.Handler

	CORSOrigins []string
	TrustProxy  bool

	// RateLimit is the number of requests allowed per client IP per RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration

	// Health is pinged by /healthz. Nil reports healthy.
	Health Pinger

	Logger zerolog.Logger
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if err := c.Stores.Validate(); err != nil {
		return err
	}
	if c.Carrier == nil {
		return errors.New("carrier is required")
	}
	if c.WebhookValidator == nil {
		return errors.New("webhook validator is required")
	}
	if c.Authenticate == nil {
		return errors.New("authenticate middleware is required")
	}
	return nil
}

// Server holds the inbox services behind the HTTP routes.
type Server struct {
	cfg        Config
	ingestor   *inbox.Ingestor
	dispatcher *inbox.Dispatcher
	projector  *inbox.Projector
	history    *inbox.History
	onboarding *inbox.Onboarding
	gzip       func(http.Handler) http.HandlerFunc
}

// NewServer builds the inbox services from cfg.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid api config: %w", err)
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = time.Minute
	}

	gz, err := gzhttp.NewWrapper(gzhttp.SuffixETag(gzipETagSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip handler: %w", err)
	}

	resolver := inbox.NewContactResolver(cfg.Stores.Contacts)

	return &Server{
		cfg:        cfg,
		ingestor:   inbox.NewIngestor(cfg.Stores, resolver, cfg.DefaultTeamID),
		dispatcher: inbox.NewDispatcher(cfg.Stores, cfg.Carrier, cfg.DefaultFromNumber),
		projector:  inbox.NewProjector(cfg.Stores.Conversations),
		history:    inbox.NewHistory(cfg.Stores.Contacts, cfg.Stores.Messages),
		onboarding: inbox.NewOnboarding(cfg.Stores.Teams, cfg.Stores.Users),
		gzip:       gz,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(logger.RequestLogger(s.cfg.Logger))
	r.Use(httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// The carrier is not a browser: it gets signature checks instead of CORS and CSRF.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit())
			r.Post("/webhooks/twilio", s.handleTwilioWebhook)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.corsHandler())
			r.Use(s.crossOriginProtection())
			r.Use(s.compress)
			r.Use(s.rateLimit())
			r.Use(s.cfg.Authenticate)

			r.Get("/contacts", s.handleListContacts)
			r.Get("/messages/{contactId}", s.handleListMessages)
			r.Post("/messages", s.handleSendMessage)
		})
	})

	return r
}

// gzipETagSuffix tells compressed and identity representations apart.
const gzipETagSuffix = "-gzip"

func (s *Server) compress(next http.Handler) http.Handler {
	return s.gzip(next)
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.cfg.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(s.cfg.RateLimit, s.cfg.RateWindow,
		httprate.WithKeyFuncs(httpmiddleware.ClientIPKey))
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: true,
	}).Handler
}

// crossOriginProtection rejects cross-origin browser writes except from the CORS origins.
func (s *Server) crossOriginProtection() func(http.Handler) http.Handler {
	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("origin", origin).Msg("Ignoring invalid trusted origin")
		}
	}
	return protection.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.cfg.Health.Ping(ctx); err != nil {
			logRequest(r).Error().Err(err).Msg("Health check failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}
