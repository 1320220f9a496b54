package meli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockhub/internal/config"
	"stockhub/internal/logger"
	"stockhub/internal/models"
	"stockhub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type tokenServer struct {
	*httptest.Server
	calls    int32
	mu       sync.Mutex
	lastForm map[string]string
	status   int
	reply    string
}

func newTokenServer(t *testing.T, status int, reply string) *tokenServer {
	ts := &tokenServer{status: status, reply: reply}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.calls, 1)
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.lastForm = map[string]string{}
		for k := range r.PostForm {
			ts.lastForm[k] = r.PostForm.Get(k)
		}
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		io.WriteString(w, ts.reply)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) Form(key string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm[key]
}

func (ts *tokenServer) Calls() int {
	return int(atomic.LoadInt32(&ts.calls))
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type apiServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	statuses []int
}

// newAPIServer replies with statuses in order, repeating the last one.
func newAPIServer(t *testing.T, statuses ...int) *apiServer {
	as := &apiServer{statuses: statuses}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		as.mu.Lock()
		as.requests = append(as.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: string(body)})
		idx := len(as.requests) - 1
		if idx >= len(as.statuses) {
			idx = len(as.statuses) - 1
		}
		status := as.statuses[idx]
		as.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			io.WriteString(w, `{"id":"MLA100","available_quantity":7}`)
		} else {
			io.WriteString(w, `{"message":"rejected"}`)
		}
	}))
	t.Cleanup(as.Close)
	return as
}

func (as *apiServer) Requests() []recordedRequest {
	as.mu.Lock()
	defer as.mu.Unlock()
	return append([]recordedRequest(nil), as.requests...)
}

type fixture struct {
	store  *store.MemoryStore
	broker *Broker
	client *Client
	oauth  *OAuthService
}

func newFixture(t *testing.T, tokenURL, apiURL string) *fixture {
	cfg := &config.Config{
		MeliClientID:     "client-1",
		MeliClientSecret: "secret-1",
		MeliRedirectURI:  "https://example.test/functions/v1/meli-callback",
		MeliAuthURL:      "https://auth.example.test/authorization",
		MeliTokenURL:     tokenURL,
	}
	log := logger.NewNop()
	mem := store.NewMemoryStore()
	oauth := NewOAuthService(cfg, http.DefaultClient, log)
	broker := NewBroker("default", mem, oauth, http.DefaultClient, log).WithClock(func() time.Time { return fixedNow })
	return &fixture{
		store:  mem,
		broker: broker,
		client: NewClient(apiURL, broker, mem, log),
		oauth:  oauth,
	}
}

func (f *fixture) seed(t *testing.T, access, refresh string, expiresIn time.Duration) *models.Credential {
	cred := &models.Credential{
		AccountID:    "default",
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    fixedNow.Add(expiresIn),
		UpdatedAt:    fixedNow.Add(-time.Hour),
	}
	require.NoError(t, f.store.Save(context.Background(), cred))
	return cred
}

func TestAccessTokenFastPath(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"unused","expires_in":21600}`)
	f := newFixture(t, ts.URL, "http://unused")
	f.seed(t, "A1", "R1", 10*time.Minute)

	token, err := f.broker.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "A1", token)
	assert.Zero(t, ts.Calls())
}

func TestAccessTokenRefreshesInsideMargin(t *testing.T) {
	for _, expiresIn := range []time.Duration{119 * time.Second, 120 * time.Second, -time.Hour} {
		ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","token_type":"Bearer","expires_in":21600,"scope":"offline_access read write","user_id":42}`)
		f := newFixture(t, ts.URL, "http://unused")
		f.seed(t, "A1", "R1", expiresIn)

		token, err := f.broker.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "A2", token)
		assert.Equal(t, 1, ts.Calls())

		assert.Equal(t, "refresh_token", ts.Form("grant_type"))
		assert.Equal(t, "R1", ts.Form("refresh_token"))
		assert.Equal(t, "client-1", ts.Form("client_id"))
		assert.Equal(t, "secret-1", ts.Form("client_secret"))

		saved, err := f.store.Latest(context.Background(), "default")
		require.NoError(t, err)
		assert.Equal(t, "A2", saved.AccessToken)
		assert.Equal(t, fixedNow.Add(21600*time.Second), saved.ExpiresAt)
		assert.Equal(t, fixedNow, saved.UpdatedAt)
		assert.Equal(t, int64(42), saved.UserID)
		assert.Equal(t, 1, f.store.CredentialCount())
	}
}

func TestRefreshTokenRetention(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","expires_in":21600}`)
	f := newFixture(t, ts.URL, "http://unused")
	f.seed(t, "A1", "R1", 0)

	_, err := f.broker.AccessToken(context.Background())
	require.NoError(t, err)

	saved, err := f.store.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "R1", saved.RefreshToken)
}

func TestRefreshTokenRotation(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","refresh_token":"R2","expires_in":21600}`)
	f := newFixture(t, ts.URL, "http://unused")
	f.seed(t, "A1", "R1", 0)

	_, err := f.broker.AccessToken(context.Background())
	require.NoError(t, err)

	saved, err := f.store.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "R2", saved.RefreshToken)
}

func TestAccessTokenMissingCredentials(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	f := newFixture(t, ts.URL, "http://unused")

	_, err := f.broker.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsMissing)
	assert.Zero(t, ts.Calls())
}

func TestRefreshFailure(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	f := newFixture(t, ts.URL, "http://unused")
	f.seed(t, "A1", "R1", 0)

	_, err := f.broker.AccessToken(context.Background())

	var refreshErr *RefreshError
	require.True(t, errors.As(err, &refreshErr))
	assert.Equal(t, http.StatusBadRequest, refreshErr.StatusCode)
	assert.Contains(t, refreshErr.Body, "invalid_grant")
	assert.Equal(t, 1, ts.Calls())

	saved, err := f.store.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "A1", saved.AccessToken)
}

func TestDoRetriesOnceAfter401(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","expires_in":21600}`)
	api := newAPIServer(t, http.StatusUnauthorized, http.StatusOK)
	f := newFixture(t, ts.URL, api.URL)
	f.seed(t, "A1", "R1", time.Hour)
	variation := int64(55)
	_, err := f.client.LinkSKU(context.Background(), "OT-HD-001", "MLA100", &variation)
	require.NoError(t, err)

	body, err := f.client.PushStock(context.Background(), "OT-HD-001", 7)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"MLA100","available_quantity":7}`, string(body))

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Bearer A1", reqs[0].Auth)
	assert.Equal(t, "Bearer A2", reqs[1].Auth)
	assert.Equal(t, reqs[0].Body, reqs[1].Body)
	assert.Equal(t, 1, ts.Calls())
}

func TestDoSecond401IsTerminal(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","expires_in":21600}`)
	api := newAPIServer(t, http.StatusUnauthorized)
	f := newFixture(t, ts.URL, api.URL)
	f.seed(t, "A1", "R1", time.Hour)
	_, err := f.client.LinkSKU(context.Background(), "OT-HD-001", "MLA100", nil)
	require.NoError(t, err)

	_, err = f.client.PushStock(context.Background(), "OT-HD-001", 7)

	assert.ErrorIs(t, err, ErrAuthRejectedAfterRefresh)
	assert.Len(t, api.Requests(), 2)
	assert.Equal(t, 1, ts.Calls())
}

func TestDoDoesNotRetryOtherStatuses(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","expires_in":21600}`)
	api := newAPIServer(t, http.StatusBadRequest)
	f := newFixture(t, ts.URL, api.URL)
	f.seed(t, "A1", "R1", time.Hour)
	_, err := f.client.LinkSKU(context.Background(), "OT-HD-001", "MLA100", nil)
	require.NoError(t, err)

	_, err = f.client.PushStock(context.Background(), "OT-HD-001", 7)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Len(t, api.Requests(), 1)
	assert.Zero(t, ts.Calls())
}

func TestPushStockPayloadShape(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	api := newAPIServer(t, http.StatusOK)
	f := newFixture(t, ts.URL, api.URL)
	f.seed(t, "A1", "R1", time.Hour)

	variation := int64(55)
	_, err := f.client.LinkSKU(context.Background(), "OT-HD-001", "MLA100", &variation)
	require.NoError(t, err)
	_, err = f.client.LinkSKU(context.Background(), "OT-TS-002", "MLA200", nil)
	require.NoError(t, err)

	_, err = f.client.PushStock(context.Background(), "OT-HD-001", 7)
	require.NoError(t, err)
	_, err = f.client.PushStock(context.Background(), "OT-TS-002", 3)
	require.NoError(t, err)

	reqs := api.Requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/items/MLA100", reqs[0].Path)
	assert.Equal(t, `{"variations":[{"id":55,"available_quantity":7}]}`, reqs[0].Body)

	assert.Equal(t, "/items/MLA200", reqs[1].Path)
	assert.Equal(t, `{"available_quantity":3}`, reqs[1].Body)
}

func TestPushStockMissingLink(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	api := newAPIServer(t, http.StatusOK)
	f := newFixture(t, ts.URL, api.URL)
	f.seed(t, "A1", "R1", 0)

	_, err := f.client.PushStock(context.Background(), "NOPE-1", 7)

	var linkErr *LinkNotFoundError
	require.True(t, errors.As(err, &linkErr))
	assert.Equal(t, "NOPE-1", linkErr.SKU)
	assert.Empty(t, api.Requests())
	assert.Zero(t, ts.Calls())
}

type conflictingStore struct {
	*store.MemoryStore
}

func (c conflictingStore) CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error {
	return store.ErrVersionConflict
}

func TestRefreshConflictKeepsConcurrentWrite(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A2","expires_in":21600}`)
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), &models.Credential{AccountID: "default", AccessToken: "A1", RefreshToken: "R1", ExpiresAt: fixedNow}))

	cfg := &config.Config{MeliTokenURL: ts.URL}
	broker := NewBroker("default", conflictingStore{mem}, NewOAuthService(cfg, http.DefaultClient, logger.NewNop()), http.DefaultClient, logger.NewNop()).
		WithClock(func() time.Time { return fixedNow })

	token, err := broker.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A2", token)

	saved, err := mem.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "A1", saved.AccessToken)
}

func TestAuthorizationURL(t *testing.T) {
	f := newFixture(t, "http://unused", "http://unused")

	authURL, state, err := f.oauth.AuthorizationURL()
	require.NoError(t, err)

	assert.Len(t, state, 64)
	assert.Contains(t, authURL, "https://auth.example.test/authorization?")
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "client_id=client-1")
	assert.Contains(t, authURL, "scope=offline_access+read+write")
	assert.Contains(t, authURL, "state="+state)

	_, other, err := f.oauth.AuthorizationURL()
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestExchangeCodeAndSaveGrant(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"A1","refresh_token":"R1","expires_in":21600,"user_id":42,"scope":"offline_access read write"}`)
	f := newFixture(t, ts.URL, "http://unused")
	ctx := context.Background()

	tok, err := f.oauth.ExchangeCode(ctx, "TG-code")
	require.NoError(t, err)
	assert.Equal(t, "authorization_code", ts.Form("grant_type"))
	assert.Equal(t, "TG-code", ts.Form("code"))
	assert.Equal(t, "https://example.test/functions/v1/meli-callback", ts.Form("redirect_uri"))

	_, err = f.broker.SaveGrant(ctx, tok)
	require.NoError(t, err)
	_, err = f.broker.SaveGrant(ctx, &TokenResponse{AccessToken: "A9", RefreshToken: "R9", ExpiresIn: 60})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.CredentialCount())
	saved, err := f.store.Latest(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "A9", saved.AccessToken)

	status, err := f.broker.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), status.SecondsRemaining)
	assert.True(t, status.RefreshDue)
}

func TestExchangeCodeRejected(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	f := newFixture(t, ts.URL, "http://unused")

	_, err := f.oauth.ExchangeCode(context.Background(), "bad")

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
}

func TestStockPayloadJSON(t *testing.T) {
	variation := int64(55)
	out, err := json.Marshal(stockPayload(&models.SKULink{SKU: "OT-HD-001", MeliItemID: "MLA100", MeliVariationID: &variation}, 7))
	require.NoError(t, err)
	assert.Equal(t, `{"variations":[{"id":55,"available_quantity":7}]}`, string(out))
}
