package meli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stockhub/internal/config"
	"stockhub/internal/logger"
)

const authScope = "offline_access read write"

type OAuthService struct {
	config     *config.Config
	httpClient HTTPClient
	logger     *logger.Logger
}

func NewOAuthService(cfg *config.Config, httpClient HTTPClient, logger *logger.Logger) *OAuthService {
	return &OAuthService{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// AuthorizationURL builds the consent URL and the state token it carries.
func (s *OAuthService) AuthorizationURL() (string, string, error) {
	state, err := s.generateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.config.MeliClientID)
	q.Set("redirect_uri", s.config.MeliRedirectURI)
	q.Set("scope", authScope)
	q.Set("state", state)

	return s.config.MeliAuthURL + "?" + q.Encode(), state, nil
}

// ExchangeCode trades an authorization code for the first token pair.
func (s *OAuthService) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", s.config.MeliClientID)
	data.Set("client_secret", s.config.MeliClientSecret)
	data.Set("code", code)
	data.Set("redirect_uri", s.config.MeliRedirectURI)

	status, body, err := s.postForm(ctx, data)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &ExchangeError{StatusCode: status, Body: string(body)}
	}
	return decodeToken(body)
}

// Refresh runs the refresh_token grant. It never retries.
func (s *OAuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", s.config.MeliClientID)
	data.Set("client_secret", s.config.MeliClientSecret)
	data.Set("refresh_token", refreshToken)

	status, body, err := s.postForm(ctx, data)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		s.logger.Warn("token refresh rejected with status %d", status)
		return nil, &RefreshError{StatusCode: status, Body: string(body)}
	}
	return decodeToken(body)
}

func (s *OAuthService) postForm(ctx context.Context, data url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.MeliTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read token response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func decodeToken(body []byte) (*TokenResponse, error) {
	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	return &tokenResp, nil
}

// generateState generates a cryptographically secure random state
func (s *OAuthService) generateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
