package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/switchboard/internal/api"
	"github.com/wolfeidau/switchboard/internal/auth"
	"github.com/wolfeidau/switchboard/internal/client"
	"github.com/wolfeidau/switchboard/internal/logger"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/telemetry"
	"github.com/wolfeidau/switchboard/internal/twilio"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"SWITCHBOARD_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"SWITCHBOARD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"SWITCHBOARD_TLS_KEY"`

	// Request handling
	CORSOrigins   []string      `help:"allowed CORS origins for API requests" default:"https://localhost" env:"SWITCHBOARD_CORS_ORIGINS"`
	PublicBaseURL string        `help:"scheme and host the carrier calls, used to verify webhook signatures behind a proxy" env:"SWITCHBOARD_PUBLIC_BASE_URL"`
	TrustProxy    bool          `help:"trust X-Forwarded-For and X-Real-IP for client addresses, and X-Forwarded-Proto for webhook URLs" default:"false" env:"SWITCHBOARD_TRUST_PROXY"`
	RateLimit     int           `help:"requests allowed per client IP per rate window, 0 disables" default:"120" env:"SWITCHBOARD_RATE_LIMIT"`
	RateWindow    time.Duration `help:"rate limit window" default:"1m" env:"SWITCHBOARD_RATE_WINDOW"`

	// Routing
	DefaultTeamID string `help:"team receiving inbound messages for numbers no team owns" env:"SWITCHBOARD_DEFAULT_TEAM_ID"`
	SeedFile      string `help:"YAML file of teams, numbers and members applied at startup" type:"existingfile" env:"SWITCHBOARD_SEED_FILE"`

	// Telemetry
	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"SWITCHBOARD_TRACING"`
	TraceSampleRatio float64 `help:"fraction of root traces sampled" default:"1.0" env:"SWITCHBOARD_TRACE_SAMPLE_RATIO"`
	Environment      string  `help:"deployment environment reported with telemetry" env:"SWITCHBOARD_ENVIRONMENT"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"SWITCHBOARD_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Twilio        TwilioFlags        `embed:"" prefix:"twilio-"`
	Auth          AuthFlags          `embed:"" prefix:"auth-"`
}

type TwilioFlags struct {
	AccountSID string        `help:"Twilio account SID" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string        `help:"Twilio auth token, signs webhooks and authenticates sends" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string        `help:"sender number for teams without their own number" env:"TWILIO_NUMBER"`
	Timeout    time.Duration `help:"timeout for a single send" default:"15s"`
}

func (t *TwilioFlags) Validate() error {
	if t.AccountSID == "" || t.AuthToken == "" {
		return errors.New("Twilio credentials are required (--twilio-account-sid and --twilio-auth-token)")
	}
	return nil
}

type AuthFlags struct {
	JWKSURL       string        `help:"identity provider JWKS URL" env:"SWITCHBOARD_AUTH_JWKS_URL"`
	PublicKeyFile string        `help:"PEM encoded ECDSA public key used instead of a JWKS URL" env:"SWITCHBOARD_AUTH_PUBLIC_KEY_FILE"`
	Issuer        string        `help:"expected token issuer" env:"SWITCHBOARD_AUTH_ISSUER"`
	Audience      string        `help:"expected token audience" env:"SWITCHBOARD_AUTH_AUDIENCE"`
	Leeway        time.Duration `help:"allowed clock skew for token times" default:"30s"`
	CacheDir      string        `help:"directory caching JWKS responses, in memory when empty" env:"SWITCHBOARD_AUTH_CACHE_DIR"`
}

func (a *AuthFlags) Validate() error {
	if (a.JWKSURL == "") == (a.PublicKeyFile == "") {
		return errors.New("exactly one of --auth-jwks-url or --auth-public-key-file is required")
	}
	return nil
}

func (a *AuthFlags) keySource() (auth.KeySource, error) {
	if a.PublicKeyFile != "" {
		data, err := os.ReadFile(a.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		return auth.NewStaticKey(string(data))
	}

	return auth.NewJWKSCache(a.JWKSURL, client.NewCachingHTTPClient(a.CacheDir, 10*time.Second)), nil
}

func (c *ServeCmd) Validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be given together (--cert and --key)")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return errors.New("trace sample ratio must be between 0 and 1")
	}
	if err := c.Twilio.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if err := c.Validate(); err != nil {
		return err
	}

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:       "switchboard",
			Version:           globals.Version,
			Environment:       c.Environment,
			StoreType:         c.StoreType,
			CarrierAccountSID: c.Twilio.AccountSID,
			SampleRatio:       c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	opened, err := openStores(ctx, log, c.StoreType, &c.PostgresStore)
	if err != nil {
		return err
	}
	defer opened.Close()

	if c.SeedFile != "" {
		if err := applySeedFile(ctx, log, opened.stores, c.SeedFile); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	defaultTeamID, err := c.defaultTeam(ctx, log, opened.stores)
	if err != nil {
		return err
	}

	carrier, err := twilio.NewClient(twilio.ClientConfig{
		AccountSID: c.Twilio.AccountSID,
		AuthToken:  c.Twilio.AuthToken,
		Timeout:    c.Twilio.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create Twilio client: %w", err)
	}

	keys, err := c.Auth.keySource()
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(auth.VerifierConfig{
		Issuer:   c.Auth.Issuer,
		Audience: c.Auth.Audience,
		Leeway:   c.Auth.Leeway,
	}, keys)

	cfg := api.Config{
		Stores:            opened.stores,
		Carrier:           carrier,
		WebhookValidator:  twilio.NewRequestValidator(c.Twilio.AuthToken),
		PublicBaseURL:     c.PublicBaseURL,
		DefaultTeamID:     defaultTeamID,
		DefaultFromNumber: c.Twilio.FromNumber,
		Authenticate:      verifier.Middleware(),
		CORSOrigins:       c.CORSOrigins,
		TrustProxy:        c.TrustProxy,
		RateLimit:         c.RateLimit,
		RateWindow:        c.RateWindow,
		Logger:            log,
	}
	if opened.pool != nil {
		cfg.Health = opened.pool
	}

	srv, err := api.NewServer(cfg)
	if err != nil {
		return err
	}

	httpServer := configureHTTPServer(c.Listen, srv.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// defaultTeam parses the default team flag and checks the team exists.
func (c *ServeCmd) defaultTeam(ctx context.Context, log zerolog.Logger, stores store.Stores) (uuid.UUID, error) {
	if c.DefaultTeamID == "" {
		return uuid.Nil, nil
	}

	teamID, err := uuid.Parse(c.DefaultTeamID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid default team id: %w", err)
	}

	team, err := stores.Teams.Get(ctx, teamID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("default team %s: %w", teamID, err)
	}

	log.Info().Str("team_id", team.TeamID.String()).Str("team", team.Name).Msg("Unrouted inbound messages go to the default team")
	return teamID, nil
}
