package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://id.example.com/"
	testAudience = "switchboard"
)

func generateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return privateKey
}

func generatePublicKeyPEM(t *testing.T, publicKey *ecdsa.PublicKey) string {
	t.Helper()
	publicKeyDER, err := x509.MarshalPKIXPublicKey(publicKey)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyDER}))
}

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|ada",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func jwksDocument(kid string, pub *ecdsa.PublicKey) string {
	enc := base64.RawURLEncoding
	return fmt.Sprintf(`{"keys":[{"kty":"EC","crv":"P-256","kid":%q,"x":%q,"y":%q},{"kty":"RSA","kid":"rsa1","n":"AQAB","e":"AQAB"}]}`,
		kid, enc.EncodeToString(pub.X.FillBytes(make([]byte, 32))), enc.EncodeToString(pub.Y.FillBytes(make([]byte, 32))))
}

func newJWKSServer(t *testing.T, kid string, pub *ecdsa.PublicKey) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(jwksDocument(kid, pub)))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestVerifierWithJWKS(t *testing.T) {
	key := generateECKey(t)
	srv, hits := newJWKSServer(t, "key-1", &key.PublicKey)
	v := NewVerifier(VerifierConfig{Issuer: testIssuer, Audience: testAudience}, NewJWKSCache(srv.URL, nil))
	ctx := context.Background()

	user, err := v.Verify(ctx, signToken(t, key, "key-1", validClaims()))
	require.NoError(t, err)
	require.Equal(t, "auth0|ada", user.UserID)
	require.Equal(t, "Ada Lovelace", user.Name)
	require.Equal(t, "ada@example.com", user.Email)

	_, err = v.Verify(ctx, signToken(t, key, "key-1", validClaims()))
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	_, err = v.Verify(ctx, signToken(t, key, "key-2", validClaims()))
	require.ErrorIs(t, err, ErrUnknownKey)
	// Unknown kids within the refresh window don't refetch.
	require.Equal(t, int32(1), hits.Load())
}

func TestVerifierRejects(t *testing.T) {
	key := generateECKey(t)
	other := generateECKey(t)
	srv, _ := newJWKSServer(t, "key-1", &key.PublicKey)
	v := NewVerifier(VerifierConfig{Issuer: testIssuer, Audience: testAudience}, NewJWKSCache(srv.URL, nil))

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://evil.example.com/"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noSubject := validClaims()
	noSubject.Subject = ""

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: signToken(t, key, "key-1", expired)},
		{name: "missing expiry", token: signToken(t, key, "key-1", noExpiry)},
		{name: "wrong issuer", token: signToken(t, key, "key-1", wrongIssuer)},
		{name: "wrong audience", token: signToken(t, key, "key-1", wrongAudience)},
		{name: "missing subject", token: signToken(t, key, "key-1", noSubject)},
		{name: "signed by another key", token: signToken(t, other, "key-1", validClaims())},
		{name: "hmac algorithm", token: hs256},
		{name: "garbage", token: "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
		})
	}
}

func TestStaticKey(t *testing.T) {
	t.Run("empty public key", func(t *testing.T) {
		_, err := NewStaticKey("")
		require.EqualError(t, err, "JWT public key not provided")
	})

	t.Run("invalid PEM", func(t *testing.T) {
		_, err := NewStaticKey("invalid pem")
		require.Error(t, err)
	})

	t.Run("verifies tokens", func(t *testing.T) {
		key := generateECKey(t)
		static, err := NewStaticKey(generatePublicKeyPEM(t, &key.PublicKey))
		require.NoError(t, err)

		v := NewVerifier(VerifierConfig{}, static)
		user, err := v.Verify(context.Background(), signToken(t, key, "", validClaims()))
		require.NoError(t, err)
		require.Equal(t, "auth0|ada", user.UserID)
	})
}

func TestJWKPublicKey(t *testing.T) {
	key := generateECKey(t)
	enc := base64.RawURLEncoding
	x := enc.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, 32)))
	y := enc.EncodeToString(key.PublicKey.Y.FillBytes(make([]byte, 32)))

	pub, err := jwk{Kid: "k", Kty: "EC", Crv: "P-256", X: x, Y: y}.publicKey()
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))

	// Padded base64url is accepted too.
	padded := base64.URLEncoding.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, 32)))
	_, err = jwk{Kid: "k", Kty: "EC", Crv: "P-256", X: padded, Y: y}.publicKey()
	require.NoError(t, err)

	_, err = jwk{Kid: "k", Kty: "EC", Crv: "P-384", X: x, Y: y}.publicKey()
	require.Error(t, err)

	_, err = jwk{Kid: "k", Kty: "EC", Crv: "P-256", X: x, Y: x}.publicKey()
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	key := generateECKey(t)
	srv, _ := newJWKSServer(t, "key-1", &key.PublicKey)
	v := NewVerifier(VerifierConfig{Issuer: testIssuer}, NewJWKSCache(srv.URL, nil))

	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		require.NotNil(t, user)
		_, _ = w.Write([]byte(user.UserID))
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + signToken(t, key, "key-1", validClaims()), wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + signToken(t, key, "key-1", validClaims()), wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.Equal(t, "auth0|ada", rec.Body.String())
			}
		})
	}
}
