package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/switchboard/internal/auth"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	"github.com/wolfeidau/switchboard/internal/store/memory"
	"github.com/wolfeidau/switchboard/internal/twilio"
)

const (
	testAuthToken  = "12345"
	testPublicURL  = "https://inbox.example.com"
	testTeamNumber = "+15559998888"
	testUserHeader = "X-Test-User"
)

type fakeCarrier struct {
	mu    sync.Mutex
	calls []twilio.SendMessageParams
	err   error
}

func (f *fakeCarrier) SendMessage(ctx context.Context, params twilio.SendMessageParams) (*twilio.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &twilio.Message{SID: fmt.Sprintf("SMOUT%d", len(f.calls)), Status: "queued"}, nil
}

// headerAuth trusts a user id header in place of a bearer token.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(testUserHeader)
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		user := &models.User{UserID: userID, Name: "Ada Lovelace", Email: "ada@example.com"}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

type testServer struct {
	handler http.Handler
	stores  store.Stores
	carrier *fakeCarrier
	team    *models.Team
}

func newTestServer(t *testing.T, opts ...func(*Config)) *testServer {
	t.Helper()

	stores := memory.New()
	carrier := &fakeCarrier{}

	cfg := Config{
		Stores:           stores,
		Carrier:          carrier,
		WebhookValidator: twilio.NewRequestValidator(testAuthToken),
		PublicBaseURL:    testPublicURL,
		Authenticate:     headerAuth,
		CORSOrigins:      []string{"https://app.example.com"},
		Logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := &testServer{handler: srv.Handler(), stores: stores, carrier: carrier}
	ts.team = ts.createTeam(t, "user-1", testTeamNumber)
	return ts
}

func (ts *testServer) createTeam(t *testing.T, userID, phone string) *models.Team {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ts.stores.Users.Upsert(ctx, &models.User{UserID: userID, Name: "Ada Lovelace", Email: "ada@example.com"}))

	team := &models.Team{TeamID: uuid.Must(uuid.NewV7()), Name: "Acme", PhoneNumber: &phone, CreatedAt: now, UpdatedAt: now}
	membership := &models.Membership{
		MembershipID: uuid.Must(uuid.NewV7()),
		UserID:       userID,
		TeamID:       team.TeamID,
		Role:         models.RoleAdmin,
		CreatedAt:    now,
	}
	require.NoError(t, ts.stores.Teams.CreateWithMembership(ctx, team, membership))
	return team
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func webhookRequest(params url.Values, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/twilio", strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(twilio.SignatureHeader, signature)
	}
	return req
}

func signedWebhook(params url.Values) *http.Request {
	sig := twilio.NewRequestValidator(testAuthToken).Signature(testPublicURL+"/api/webhooks/twilio", params)
	return webhookRequest(params, sig)
}

func inboundParams(from, sid, body string) url.Values {
	return url.Values{
		"From":       {from},
		"To":         {testTeamNumber},
		"Body":       {body},
		"MessageSid": {sid},
		"AccountSid": {"AC123"},
	}
}

func apiRequest(method, target, userID, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestWebhookIngestsSignedMessage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(signedWebhook(inboundParams("+15550001111", "SM123", "Hi")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "<Response></Response>")

	contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "+15550001111")
	require.NoError(t, err)

	msgs, err := ts.stores.Messages.ListByContact(context.Background(), contact.ContactID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Hi", msgs[0].Content)
	require.Equal(t, models.DirectionInbound, msgs[0].Direction)
	require.Equal(t, models.StatusUnread, msgs[0].Status)
	require.Equal(t, models.ChannelSMS, msgs[0].Channel)
	require.Equal(t, "SM123", msgs[0].ExternalID)
}

func TestWebhookRedeliveryStoresOnce(t *testing.T) {
	ts := newTestServer(t)
	params := inboundParams("whatsapp:+15550001111", "SM200", "Hola")

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = ts.do(signedWebhook(params)).Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "whatsapp:+15550001111")
	require.NoError(t, err)
	msgs, err := ts.stores.Messages.ListByContact(context.Background(), contact.ContactID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.ChannelWhatsApp, msgs[0].Channel)
}

func TestWebhookRejections(t *testing.T) {
	tests := []struct {
		name     string
		request  func() *http.Request
		expected int
	}{
		{
			name:     "missing signature",
			request:  func() *http.Request { return webhookRequest(inboundParams("+15550001111", "SM1", "Hi"), "") },
			expected: http.StatusUnauthorized,
		},
		{
			name: "wrong signature",
			request: func() *http.Request {
				return webhookRequest(inboundParams("+15550001111", "SM1", "Hi"), "0/KCTR6DLpKmkAf8muzZqo1nDgQ=")
			},
			expected: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			request: func() *http.Request {
				params := inboundParams("+15550001111", "SM1", "Hi")
				sig := twilio.NewRequestValidator(testAuthToken).Signature(testPublicURL+"/api/webhooks/twilio", params)
				params.Set("Body", "Bye")
				return webhookRequest(params, sig)
			},
			expected: http.StatusUnauthorized,
		},
		{
			name: "missing fields",
			request: func() *http.Request {
				params := inboundParams("+15550001111", "SM1", "Hi")
				params.Del("MessageSid")
				return signedWebhook(params)
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "unrouted number",
			request: func() *http.Request {
				params := inboundParams("+15550001111", "SM1", "Hi")
				params.Set("To", "+15550000000")
				return signedWebhook(params)
			},
			expected: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(tt.request())
			require.Equal(t, tt.expected, rec.Code)

			_, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "+15550001111")
			require.ErrorIs(t, err, store.ErrContactNotFound)
		})
	}
}

func TestListContacts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(apiRequest(http.MethodGet, "/api/contacts", "", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM1", "first"))).Code)
	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550002222", "SM2", "second"))).Code)

	rec = ts.do(apiRequest(http.MethodGet, "/api/contacts", "user-1", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("ETag"))

	convs := decode[[]conversationView](t, rec)
	require.Len(t, convs, 2)
	require.Equal(t, "+15550002222", convs[0].Phone)
	require.Equal(t, "second", convs[0].LastMessage)
	require.NotNil(t, convs[0].LastMessageAt)
	require.Equal(t, "+15550001111", convs[1].Phone)
}

func TestListContactsNotModified(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM1", "first"))).Code)

	rec := ts.do(apiRequest(http.MethodGet, "/api/contacts", "user-1", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")

	req := apiRequest(http.MethodGet, "/api/contacts", "user-1", "")
	req.Header.Set("If-None-Match", etag)
	rec = ts.do(req)
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.Bytes())

	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM2", "again"))).Code)

	req = apiRequest(http.MethodGet, "/api/contacts", "user-1", "")
	req.Header.Set("If-None-Match", etag)
	rec = ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestListContactsOnboardsNewUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(apiRequest(http.MethodGet, "/api/contacts", "user-new", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]conversationView](t, rec))

	membership, err := ts.stores.Teams.GetMembershipByUser(context.Background(), "user-new")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, membership.Role)
	require.NotEqual(t, ts.team.TeamID, membership.TeamID)
}

func TestListMessages(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM1", "Hi"))).Code)

	contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "+15550001111")
	require.NoError(t, err)

	rec := ts.do(apiRequest(http.MethodPost, "/api/messages", "user-1",
		fmt.Sprintf(`{"contactId":%q,"messageBody":"Hello"}`, contact.ContactID)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(apiRequest(http.MethodGet, "/api/messages/"+contact.ContactID.String(), "user-1", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("ETag"))

	msgs := decode[[]messageView](t, rec)
	require.Len(t, msgs, 2)
	require.Equal(t, "Hi", msgs[0].Content)
	require.Equal(t, "INBOUND", msgs[0].Direction)
	require.Nil(t, msgs[0].User)
	require.Equal(t, "Hello", msgs[1].Content)
	require.Equal(t, "OUTBOUND", msgs[1].Direction)
	require.Equal(t, &senderView{Name: "Ada Lovelace", Email: "ada@example.com"}, msgs[1].User)
}

func TestListMessagesErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM1", "Hi"))).Code)
	contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "+15550001111")
	require.NoError(t, err)

	ts.createTeam(t, "user-2", "+15557776666")

	tests := []struct {
		name     string
		target   string
		userID   string
		expected int
	}{
		{name: "unauthenticated", target: "/api/messages/" + contact.ContactID.String(), expected: http.StatusUnauthorized},
		{name: "other team", target: "/api/messages/" + contact.ContactID.String(), userID: "user-2", expected: http.StatusNotFound},
		{name: "unknown contact", target: "/api/messages/" + uuid.NewString(), userID: "user-1", expected: http.StatusNotFound},
		{name: "malformed id", target: "/api/messages/not-a-uuid", userID: "user-1", expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(apiRequest(http.MethodGet, tt.target, tt.userID, ""))
			require.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestSendMessage(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("whatsapp:+15550001111", "SM1", "Hi"))).Code)
	contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "whatsapp:+15550001111")
	require.NoError(t, err)

	rec := ts.do(apiRequest(http.MethodPost, "/api/messages", "user-1",
		fmt.Sprintf(`{"contactId":%q,"messageBody":"Hello"}`, contact.ContactID)))
	require.Equal(t, http.StatusCreated, rec.Code)

	sent := decode[sentMessageView](t, rec)
	require.Equal(t, "Hello", sent.Content)
	require.Equal(t, "OUTBOUND", sent.Direction)
	require.Equal(t, "SENT", sent.Status)
	require.Equal(t, "WHATSAPP", sent.Channel)
	require.Equal(t, "SMOUT1", sent.TwilioSID)
	require.Equal(t, contact.ContactID.String(), sent.ContactID)
	require.NotNil(t, sent.UserID)
	require.Equal(t, "user-1", *sent.UserID)

	require.Len(t, ts.carrier.calls, 1)
	require.Equal(t, "whatsapp:+15550001111", ts.carrier.calls[0].To)
	require.Equal(t, "whatsapp:"+testTeamNumber, ts.carrier.calls[0].From)
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       func(contactID uuid.UUID) string
		userID     string
		carrierErr error
		expected   int
		code       string
	}{
		{
			name:     "unauthenticated",
			body:     func(id uuid.UUID) string { return fmt.Sprintf(`{"contactId":%q,"messageBody":"Hello"}`, id) },
			expected: http.StatusUnauthorized,
		},
		{
			name:     "invalid json",
			body:     func(uuid.UUID) string { return `{"contactId":` },
			userID:   "user-1",
			expected: http.StatusBadRequest,
			code:     "bad_request",
		},
		{
			name:     "missing body",
			body:     func(id uuid.UUID) string { return fmt.Sprintf(`{"contactId":%q}`, id) },
			userID:   "user-1",
			expected: http.StatusBadRequest,
			code:     "bad_request",
		},
		{
			name:     "blank body",
			body:     func(id uuid.UUID) string { return fmt.Sprintf(`{"contactId":%q,"messageBody":"   "}`, id) },
			userID:   "user-1",
			expected: http.StatusBadRequest,
			code:     "bad_request",
		},
		{
			name:     "missing contact",
			body:     func(uuid.UUID) string { return `{"messageBody":"Hello"}` },
			userID:   "user-1",
			expected: http.StatusBadRequest,
			code:     "bad_request",
		},
		{
			name:     "unknown contact",
			body:     func(uuid.UUID) string { return fmt.Sprintf(`{"contactId":%q,"messageBody":"Hello"}`, uuid.New()) },
			userID:   "user-1",
			expected: http.StatusNotFound,
			code:     "not_found",
		},
		{
			name:       "carrier failure",
			body:       func(id uuid.UUID) string { return fmt.Sprintf(`{"contactId":%q,"messageBody":"Hello"}`, id) },
			userID:     "user-1",
			carrierErr: errors.New("carrier unavailable"),
			expected:   http.StatusBadGateway,
			code:       "dispatch_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.carrier.err = tt.carrierErr
			require.Equal(t, http.StatusOK, ts.do(signedWebhook(inboundParams("+15550001111", "SM1", "Hi"))).Code)
			contact, err := ts.stores.Contacts.GetByPhone(context.Background(), ts.team.TeamID, "+15550001111")
			require.NoError(t, err)

			rec := ts.do(apiRequest(http.MethodPost, "/api/messages", tt.userID, tt.body(contact.ContactID)))
			require.Equal(t, tt.expected, rec.Code)
			if tt.code != "" {
				require.Equal(t, tt.code, decode[errorResponse](t, rec).Error.Code)
			}

			// only the inbound message is stored
			msgs, err := ts.stores.Messages.ListByContact(context.Background(), contact.ContactID)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
		})
	}
}

func TestCrossOriginWriteRejected(t *testing.T) {
	ts := newTestServer(t)

	req := apiRequest(http.MethodPost, "/api/messages", "user-1", `{"contactId":"x","messageBody":"Hello"}`)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Origin", "https://evil.example.com")

	rec := ts.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, ts.carrier.calls)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		health   Pinger
		expected int
	}{
		{name: "no pinger", expected: http.StatusOK},
		{name: "store answers", health: pingFunc(func(context.Context) error { return nil }), expected: http.StatusOK},
		{name: "store down", health: pingFunc(func(context.Context) error { return errors.New("down") }), expected: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(Config{
				Stores:           memory.New(),
				Carrier:          &fakeCarrier{},
				WebhookValidator: twilio.NewRequestValidator(testAuthToken),
				Authenticate:     headerAuth,
				Health:           tt.health,
				Logger:           zerolog.Nop(),
			})
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	_, err := NewServer(Config{Stores: memory.New()})
	require.Error(t, err)
}

func TestListContactsETagVariesByEncoding(t *testing.T) {
	ts := newTestServer(t)
	for i := range 25 {
		params := inboundParams(fmt.Sprintf("+1555000%04d", i), fmt.Sprintf("SM%d", i), "a message long enough to push the listing past the compression threshold")
		require.Equal(t, http.StatusOK, ts.do(signedWebhook(params)).Code)
	}

	gzipReq := func(match string) *http.Request {
		req := apiRequest(http.MethodGet, "/api/contacts", "user-1", "")
		req.Header.Set("Accept-Encoding", "gzip")
		if match != "" {
			req.Header.Set("If-None-Match", match)
		}
		return req
	}

	compressed := ts.do(gzipReq(""))
	require.Equal(t, http.StatusOK, compressed.Code)
	require.Equal(t, "gzip", compressed.Header().Get("Content-Encoding"))
	gzipTag := compressed.Header().Get("ETag")

	identity := ts.do(apiRequest(http.MethodGet, "/api/contacts", "user-1", ""))
	require.Equal(t, http.StatusOK, identity.Code)
	require.Empty(t, identity.Header().Get("Content-Encoding"))
	identityTag := identity.Header().Get("ETag")

	require.NotEmpty(t, gzipTag)
	require.NotEqual(t, identityTag, gzipTag)

	require.Equal(t, http.StatusNotModified, ts.do(gzipReq(gzipTag)).Code)

	req := apiRequest(http.MethodGet, "/api/contacts", "user-1", "")
	req.Header.Set("If-None-Match", `"stale", W/`+identityTag)
	require.Equal(t, http.StatusNotModified, ts.do(req).Code)
}

func TestETagMatches(t *testing.T) {
	const etag = `"abc123"`

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "exact", header: `"abc123"`, want: true},
		{name: "weak", header: `W/"abc123"`, want: true},
		{name: "list", header: `"zzz", "abc123"`, want: true},
		{name: "wildcard", header: `*`, want: true},
		{name: "gzip suffix inside quotes", header: `"abc123-gzip"`, want: true},
		{name: "gzip suffix outside quotes", header: `"abc123"-gzip`, want: true},
		{name: "different", header: `"abc124"`, want: false},
		{name: "empty", header: "", want: false},
		{name: "empty tag", header: `""`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, etagMatches(tt.header, etag))
		})
	}
}

func TestWebhookForwardedProto(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantStatus int
	}{
		{name: "ignored without trusted proxy", trustProxy: false, wantStatus: http.StatusUnauthorized},
		{name: "honoured behind trusted proxy", trustProxy: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(cfg *Config) {
				cfg.PublicBaseURL = ""
				cfg.TrustProxy = tt.trustProxy
			})

			params := inboundParams("+15550001111", "SM1", "hi")
			sig := twilio.NewRequestValidator(testAuthToken).Signature("https://example.com/api/webhooks/twilio", params)
			req := webhookRequest(params, sig)
			req.Header.Set("X-Forwarded-Proto", "https")

			require.Equal(t, tt.wantStatus, ts.do(req).Code)
		})
	}
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte(`[{"id":"1"}]`))
	require.Equal(t, a, generateETag([]byte(`[{"id":"1"}]`)))
	require.NotEqual(t, a, generateETag([]byte(`[{"id":"2"}]`)))
	require.True(t, strings.HasPrefix(a, `"`) && strings.HasSuffix(a, `"`))
}
