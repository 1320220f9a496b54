package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stockhub/internal/logger"
	"stockhub/internal/models"
	"stockhub/internal/store"
)

// Client calls the marketplace items API through a Broker.
type Client struct {
	baseURL string
	broker  *Broker
	links   store.LinkStore
	logger  *logger.Logger
}

func NewClient(baseURL string, broker *Broker, links store.LinkStore, logger *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		broker:  broker,
		links:   links,
		logger:  logger,
	}
}

// PushStock sets the absolute available quantity of the listing linked to sku.
// The echoed item is returned as received.
func (c *Client) PushStock(ctx context.Context, sku string, quantity int) (json.RawMessage, error) {
	link, err := c.links.Get(ctx, sku)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &LinkNotFoundError{SKU: sku}
	}
	if err != nil {
		return nil, fmt.Errorf("load sku link: %w", err)
	}

	payload, err := json.Marshal(stockPayload(link, quantity))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	itemURL := c.itemURL(link.MeliItemID)
	resp, err := c.broker.Do(ctx, func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, itemURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("pushed stock %d for sku %s to item %s", quantity, sku, link.MeliItemID)
	return body, nil
}

func (c *Client) GetItem(ctx context.Context, itemID string) (json.RawMessage, error) {
	itemURL := c.itemURL(itemID)
	resp, err := c.broker.Do(ctx, func(ctx context.Context, token string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, itemURL, nil)
	})
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

// LinkSKU records which listing a SKU is published as.
func (c *Client) LinkSKU(ctx context.Context, sku, itemID string, variationID *int64) (*models.SKULink, error) {
	if sku == "" || itemID == "" {
		return nil, fmt.Errorf("sku and item id are required")
	}
	link := &models.SKULink{SKU: sku, MeliItemID: itemID, MeliVariationID: variationID}
	if err := c.links.Upsert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (c *Client) Link(ctx context.Context, sku string) (*models.SKULink, error) {
	link, err := c.links.Get(ctx, sku)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &LinkNotFoundError{SKU: sku}
	}
	return link, err
}

func (c *Client) itemURL(itemID string) string {
	return fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(itemID))
}

// stockPayload picks exactly one body shape: the variation list when the
// link names a variation, the item quantity otherwise.
func stockPayload(link *models.SKULink, quantity int) interface{} {
	if link.HasVariation() {
		return variationsPayload{
			Variations: []variationQuantity{{ID: *link.MeliVariationID, AvailableQuantity: quantity}},
		}
	}
	return itemQuantityPayload{AvailableQuantity: quantity}
}

func readResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.RawMessage(body), nil
}
