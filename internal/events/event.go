// Package events carries typed stock and marketplace notifications between
// the API, the worker and dashboard subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	StockChanged  Type = "stock.changed"
	StockLow      Type = "stock.low"
	PushRequested Type = "marketplace.push_requested"
	Pushed        Type = "marketplace.pushed"
	PushFailed    Type = "marketplace.push_failed"
)

// Event is the payload every publisher and subscriber agrees on.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SKU       string    `json:"sku"`
	Channel   string    `json:"channel,omitempty"`
	Quantity  int       `json:"quantity"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(t Type, sku string, quantity int) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		SKU:       sku,
		Quantity:  quantity,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return e, nil
}
