package woocommerce

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"stockhub/internal/config"
	"stockhub/internal/logger"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw delivery body.
const SignatureHeader = "X-WC-Webhook-Signature"

var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrWebhookSecretMissing = errors.New("woocommerce webhook secret is not configured")
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Product is the storefront's view of a stock row. StockQuantity is nil when
// the store does not manage stock for the product.
type Product struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	StockQuantity *int   `json:"stock_quantity"`
}

type WooCommerceConnector struct {
	config     *config.Config
	httpClient HTTPClient
	logger     *logger.Logger
}

func New(cfg *config.Config, httpClient HTTPClient, logger *logger.Logger) *WooCommerceConnector {
	return &WooCommerceConnector{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Sync asks the sync function for the storefront's current products.
func (wc *WooCommerceConnector) Sync(ctx context.Context) ([]Product, error) {
	if wc.config.WooSyncURL == "" {
		return nil, fmt.Errorf("woocommerce sync url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.config.WooSyncURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := wc.config.SupabaseServiceKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
		req.Header.Set("apikey", key)
	}

	resp, err := wc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sync request failed: %d - %s", resp.StatusCode, string(body))
	}

	products, err := decodeProducts(body)
	if err != nil {
		return nil, err
	}

	wc.logger.Info("Synced %d products from WooCommerce", len(products))
	return products, nil
}

// VerifySignature checks a delivery against WOO_WEBHOOK_SECRET. Without a
// secret every delivery is refused.
func (wc *WooCommerceConnector) VerifySignature(payload []byte, signature string) error {
	secret := wc.config.WooWebhookSecret
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleWebhook verifies and parses a product.created or product.updated delivery.
func (wc *WooCommerceConnector) HandleWebhook(payload []byte, signature string) (*Product, error) {
	if err := wc.VerifySignature(payload, signature); err != nil {
		return nil, err
	}

	var p Product
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}
	if p.SKU == "" {
		return nil, fmt.Errorf("webhook product %d has no sku", p.ID)
	}

	wc.logger.Debug("Received WooCommerce webhook for sku %s", p.SKU)
	return &p, nil
}

// decodeProducts accepts {"products":[...]} or a bare array.
func decodeProducts(body []byte) ([]Product, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var products []Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return products, nil
	}

	var wrapped struct {
		Products []Product `json:"products"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return wrapped.Products, nil
}
