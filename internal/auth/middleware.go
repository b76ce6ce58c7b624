// Package auth authenticates team members with bearer JWTs issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/switchboard/internal/models"
)

type contextKey int

const (
	userContextKey contextKey = iota
)

// UserFromContext returns the authenticated user, or nil for unauthenticated requests.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Claims are the identity provider claims read from a token.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// VerifierConfig configures token validation.
type VerifierConfig struct {
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf/iat. Default: 30s
	Leeway time.Duration
}

// Verifier validates ES256 bearer tokens.
type Verifier struct {
	cfg  VerifierConfig
	keys KeySource
}

// NewVerifier creates a verifier resolving signing keys from keys.
func NewVerifier(cfg VerifierConfig, keys KeySource) *Verifier {
	if cfg.Leeway == 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &Verifier{cfg: cfg, keys: keys}
}

// Verify checks the token signature and registered claims and returns the identity it asserts.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}

	return &models.User{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}

// Middleware returns an HTTP middleware that rejects requests without a valid bearer token
// and stores the authenticated user in the request context.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				hlog.FromRequest(r).Debug().Msg("Missing bearer token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := v.Verify(r.Context(), tokenString)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("Failed to verify JWT")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
