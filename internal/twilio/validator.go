// Package twilio verifies carrier webhooks and sends messages through the Twilio REST API.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the carrier signs webhooks with HMAC-SHA1
	"encoding/base64"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrMissingAuthToken = errors.New("webhook auth token not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// RequestValidator checks webhook signatures produced with the account auth token.
type RequestValidator struct {
	authToken []byte
	sdk       twilioclient.RequestValidator
}

// NewRequestValidator creates a validator for the given auth token.
func NewRequestValidator(authToken string) *RequestValidator {
	return &RequestValidator{
		authToken: []byte(authToken),
		sdk:       twilioclient.NewRequestValidator(authToken),
	}
}

// Validate verifies signature over fullURL and the raw request body.
//
// Form bodies are signed as the URL followed by each parameter name and value, sorted by name.
// JSON bodies are signed as the URL alone, which must carry a bodySHA256 query parameter matching
// the body. The URL is tried as given and with its default port toggled.
func (v *RequestValidator) Validate(fullURL string, rawBody []byte, contentType, signature string) error {
	if len(v.authToken) == 0 {
		return ErrMissingAuthToken
	}
	if signature == "" {
		return ErrMissingSignature
	}

	if IsJSON(contentType) {
		if !v.sdk.ValidateBody(fullURL, rawBody, signature) {
			return ErrInvalidSignature
		}
		return nil
	}

	params, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return ErrInvalidSignature
	}

	if flat, ok := singleValued(params); ok {
		if !v.sdk.Validate(fullURL, flat, signature) {
			return ErrInvalidSignature
		}
		return nil
	}

	// The SDK takes one value per key; repeated keys are signed here.
	u, err := url.Parse(fullURL)
	if err != nil {
		return ErrInvalidSignature
	}
	for _, candidate := range urlVariants(u) {
		if hmac.Equal([]byte(v.Signature(candidate, params)), []byte(signature)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// Signature computes the expected signature for a URL and form parameters.
func (v *RequestValidator) Signature(fullURL string, params url.Values) string {
	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(signedString(fullURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func singleValued(params url.Values) (map[string]string, bool) {
	flat := make(map[string]string, len(params))
	for k, values := range params {
		if len(values) != 1 {
			return nil, false
		}
		flat[k] = values[0]
	}
	return flat, true
}

func signedString(fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, val := range values {
			b.WriteString(k)
			b.WriteString(val)
		}
	}
	return b.String()
}

// urlVariants returns the URL as given plus the same URL with the scheme's default port
// added when absent or removed when present.
func urlVariants(u *url.URL) []string {
	variants := []string{u.String()}

	defaultPort := map[string]string{"https": "443", "http": "80"}[u.Scheme]
	if defaultPort == "" {
		return variants
	}

	alt := *u
	switch u.Port() {
	case "":
		alt.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	case defaultPort:
		alt.Host = u.Hostname()
	default:
		return variants
	}

	return append(variants, alt.String())
}

// IsJSON reports whether contentType is application/json.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// RequestURL rebuilds the URL the carrier called. When publicBaseURL is set it replaces the
// scheme and host seen by this process, which differ behind a TLS-terminating proxy.
// X-Forwarded-Proto is only honoured when trustProxy is set.
func RequestURL(publicBaseURL string, trustProxy bool, r *http.Request) string {
	if publicBaseURL != "" {
		return strings.TrimSuffix(publicBaseURL, "/") + r.URL.RequestURI()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}

	return scheme + "://" + r.Host + r.URL.RequestURI()
}
