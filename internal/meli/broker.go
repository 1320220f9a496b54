package meli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockhub/internal/logger"
	"stockhub/internal/models"
	"stockhub/internal/store"
)

// ExpiryMargin is how long before expires_at a token stops being handed out.
const ExpiryMargin = 120 * time.Second

// RetryPolicy bounds how often Broker.Do resends a request.
type RetryPolicy struct {
	MaxAttempts int
	RetryStatus int
}

// DefaultRetryPolicy resends once, only after a 401.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, RetryStatus: http.StatusUnauthorized}

// RequestBuilder builds the same logical request for a given bearer token.
type RequestBuilder func(ctx context.Context, token string) (*http.Request, error)

// Refresher runs the refresh_token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Broker owns the credential of one marketplace account.
type Broker struct {
	accountID  string
	creds      store.CredentialStore
	refresher  Refresher
	httpClient HTTPClient
	policy     RetryPolicy
	now        func() time.Time
	logger     *logger.Logger
}

func NewBroker(accountID string, creds store.CredentialStore, refresher Refresher, httpClient HTTPClient, logger *logger.Logger) *Broker {
	return &Broker{
		accountID:  accountID,
		creds:      creds,
		refresher:  refresher,
		httpClient: httpClient,
		policy:     DefaultRetryPolicy,
		now:        time.Now,
		logger:     logger.With("account_id", accountID),
	}
}

func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.now = now
	return b
}

func (b *Broker) WithRetryPolicy(p RetryPolicy) *Broker {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	b.policy = p
	return b
}

func (b *Broker) AccountID() string {
	return b.accountID
}

// AccessToken returns a token usable for at least ExpiryMargin, refreshing
// when the stored one is too close to expiry.
func (b *Broker) AccessToken(ctx context.Context) (string, error) {
	cred, err := b.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.UsableAt(b.now(), ExpiryMargin) {
		return cred.AccessToken, nil
	}
	return b.refresh(ctx, cred)
}

// ForceRefresh refreshes regardless of the stored expiry.
func (b *Broker) ForceRefresh(ctx context.Context) (string, error) {
	cred, err := b.load(ctx)
	if err != nil {
		return "", err
	}
	return b.refresh(ctx, cred)
}

// Do sends the built request with a valid token. A response matching the
// retry status triggers one forced refresh and one resend; any other
// response is returned to the caller, who must close its body.
func (b *Broker) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	token, err := b.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		req, err := build(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		if resp.StatusCode != b.policy.RetryStatus {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= b.policy.MaxAttempts {
			b.logger.Error("%s %s rejected after refresh", req.Method, req.URL.Path)
			return nil, ErrAuthRejectedAfterRefresh
		}

		b.logger.Info("%s %s returned %d, forcing token refresh", req.Method, req.URL.Path, resp.StatusCode)
		token, err = b.ForceRefresh(ctx)
		if err != nil {
			return nil, err
		}
	}
}

// SaveGrant persists a token pair from the authorization code exchange.
// Re-authorizing overwrites the account's current row.
func (b *Broker) SaveGrant(ctx context.Context, tok *TokenResponse) (*models.Credential, error) {
	now := b.now()
	cred := &models.Credential{AccountID: b.accountID}

	existing, err := b.creds.Latest(ctx, b.accountID)
	switch {
	case err == nil:
		cred.ID = existing.ID
		cred.Version = existing.Version
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load credential: %w", err)
	}

	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.Scope = tok.Scope
	cred.UserID = tok.UserID
	cred.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	cred.UpdatedAt = now

	if err := b.creds.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	b.logger.Info("stored credential for marketplace user %d", tok.UserID)
	return cred, nil
}

func (b *Broker) Status(ctx context.Context) (*Status, error) {
	cred, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	now := b.now()
	remaining := int64(cred.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		AccountID:        cred.AccountID,
		UserID:           cred.UserID,
		Scope:            cred.Scope,
		ExpiresAt:        cred.ExpiresAt,
		UpdatedAt:        cred.UpdatedAt,
		SecondsRemaining: remaining,
		RefreshDue:       !cred.UsableAt(now, ExpiryMargin),
	}, nil
}

func (b *Broker) load(ctx context.Context) (*models.Credential, error) {
	cred, err := b.creds.Latest(ctx, b.accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCredentialsMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

func (b *Broker) refresh(ctx context.Context, cred *models.Credential) (string, error) {
	tok, err := b.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	now := b.now()
	next := *cred
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.Scope != "" {
		next.Scope = tok.Scope
	}
	if tok.UserID != 0 {
		next.UserID = tok.UserID
	}
	next.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	next.UpdatedAt = now

	if err := b.creds.CompareAndSwap(ctx, &next, cred.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another caller refreshed first. Its row stays; our token is still valid.
			b.logger.Warn("credential changed during refresh, keeping the concurrent write")
			return tok.AccessToken, nil
		}
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}

	b.logger.Debug("refreshed access token, expires at %s", next.ExpiresAt.Format(time.RFC3339))
	return tok.AccessToken, nil
}
