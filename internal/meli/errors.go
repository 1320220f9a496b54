package meli

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsMissing means no credential row exists for the account.
	ErrCredentialsMissing = errors.New("meli: no stored credentials")
	// ErrAuthRejectedAfterRefresh means the API answered 401 even with a freshly refreshed token.
	ErrAuthRejectedAfterRefresh = errors.New("meli: token rejected after refresh")
)

// RefreshError is returned when the token endpoint rejects a refresh_token grant.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("meli: token refresh failed: %d - %s", e.StatusCode, e.Body)
}

// ExchangeError is returned when the token endpoint rejects an authorization code.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("meli: code exchange failed: %d - %s", e.StatusCode, e.Body)
}

type LinkNotFoundError struct {
	SKU string
}

func (e *LinkNotFoundError) Error() string {
	return fmt.Sprintf("meli: no listing linked to sku %q", e.SKU)
}

// APIError carries a non-2xx marketplace response that was not retried.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meli: API request failed: %d - %s", e.StatusCode, e.Body)
}
