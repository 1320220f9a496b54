// Package relay forwards inbound marketplace notifications to the backing
// processor with service credentials attached.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"stockhub/internal/logger"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Forwarder struct {
	TargetURL  string
	ServiceKey string

	httpClient HTTPClient
	logger     *logger.Logger
}

// Response is the upstream reply, copied as received.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func NewForwarder(targetURL, serviceKey string, httpClient HTTPClient, logger *logger.Logger) *Forwarder {
	return &Forwarder{
		TargetURL:  targetURL,
		ServiceKey: serviceKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Forward posts body unchanged to the target. Non-2xx upstream replies are
// not errors; they are returned for the caller to pass through.
func (f *Forwarder) Forward(ctx context.Context, body []byte, contentType string) (*Response, error) {
	if f.TargetURL == "" {
		return nil, fmt.Errorf("relay target is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.TargetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.ServiceKey)
	req.Header.Set("apikey", f.ServiceKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	f.logger.Debug("relayed %d bytes, upstream answered %d", len(body), resp.StatusCode)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}
