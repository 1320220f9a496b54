package meli

import (
	"net/http"
	"time"
)

// TokenResponse is the token endpoint reply for both grant types.
// RefreshToken is empty when the provider does not rotate it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status describes the stored credential without exposing tokens.
type Status struct {
	AccountID        string    `json:"account_id"`
	UserID           int64     `json:"user_id"`
	Scope            string    `json:"scope"`
	ExpiresAt        time.Time `json:"expires_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	SecondsRemaining int64     `json:"seconds_remaining"`
	RefreshDue       bool      `json:"refresh_due"`
}

type variationQuantity struct {
	ID                int64 `json:"id"`
	AvailableQuantity int   `json:"available_quantity"`
}

type variationsPayload struct {
	Variations []variationQuantity `json:"variations"`
}

type itemQuantityPayload struct {
	AvailableQuantity int `json:"available_quantity"`
}
