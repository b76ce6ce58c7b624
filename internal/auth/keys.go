package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrUnknownKey is returned when no key matches the token's kid.
var ErrUnknownKey = errors.New("unknown signing key")

// KeySource resolves the public key that signed a token.
type KeySource interface {
	Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error)
}

// StaticKey is a single PEM-configured key used regardless of kid.
type StaticKey struct {
	publicKey *ecdsa.PublicKey
}

// NewStaticKey parses a PEM-encoded ECDSA public key.
func NewStaticKey(publicKeyPEM string) (*StaticKey, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	return &StaticKey{publicKey: publicKey}, nil
}

// Key returns the configured key.
func (s *StaticKey) Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	return s.publicKey, nil
}

// JWKSCache fetches the identity provider's JWKS and keeps the parsed keys for a TTL.
// HTTP-level caching is left to the supplied client.
type JWKSCache struct {
	jwksURL    string
	httpClient *http.Client
	ttl        time.Duration

	// minRefresh limits refetches triggered by unknown kids.
	minRefresh time.Duration

	mu        sync.RWMutex
	keys      map[string]*ecdsa.PublicKey // kid → public key
	fetchedAt time.Time
}

// NewJWKSCache creates a key source backed by a JWKS endpoint.
func NewJWKSCache(jwksURL string, httpClient *http.Client) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	return &JWKSCache{
		jwksURL:    jwksURL,
		httpClient: httpClient,
		ttl:        time.Hour,
		minRefresh: time.Minute,
	}
}

// Key returns the key for kid, fetching the JWKS when the cache is stale or the kid is new.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	age := time.Since(c.fetchedAt)
	c.mu.RUnlock()

	if ok && age < c.ttl {
		return key, nil
	}
	// A rotated key shows up as an unknown kid; don't let bad tokens hammer the endpoint.
	if !ok && c.keys != nil && age < c.minRefresh {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		if ok {
			log.Warn().Err(err).Msg("JWKS refresh failed, using cached key")
			return key, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	key, ok = keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}

	log.Debug().Str("kid", kid).Int("total_keys", len(keys)).Msg("Cached JWKS")
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		key, err := k.publicKey()
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("Skipping JWK")
			continue
		}

		keys[k.Kid] = key
	}

	return keys, nil
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// publicKey converts an EC P-256 JWK into an ECDSA public key.
func (k jwk) publicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" {
		return nil, fmt.Errorf("unsupported key type: %q", k.Kty)
	}
	if k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %q", k.Crv)
	}
	if k.X == "" || k.Y == "" {
		return nil, errors.New("missing coordinates")
	}

	xBytes, err := decodeBase64URL(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}

	yBytes, err := decodeBase64URL(k.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) { //nolint:staticcheck // no ecdh equivalent for validating JWK points
		return nil, errors.New("point is not on curve")
	}

	return pub, nil
}

// decodeBase64URL decodes base64url with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// ParsePublicKeyPEM parses a PEM-encoded ECDSA public key.
func ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}

	return ecdsaPub, nil
}
