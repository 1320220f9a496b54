package processors

import (
	"context"
	"encoding/json"
	"errors"

	"stockhub/internal/events"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/models"
)

type StockPusher interface {
	PushStock(ctx context.Context, sku string, quantity int) (json.RawMessage, error)
}

type StockRecorder interface {
	SetStock(ctx context.Context, sku string, channel models.Channel, quantity int) (*models.Product, error)
}

// EventProcessor performs queued marketplace pushes.
type EventProcessor struct {
	pusher    StockPusher
	stock     StockRecorder
	publisher events.Publisher
	logger    *logger.Logger
}

func NewEventProcessor(pusher StockPusher, stock StockRecorder, publisher events.Publisher, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		pusher:    pusher,
		stock:     stock,
		publisher: publisher,
		logger:    logger,
	}
}

func (ep *EventProcessor) Process(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.PushRequested:
		_, err := ep.PushStock(ctx, e.SKU, e.Quantity)
		return err
	default:
		ep.logger.Debug("Skipping %s event for %s", e.Type, e.SKU)
		return nil
	}
}

// PushStock pushes once, records the new marketplace stock and announces
// the outcome. A failure is announced and returned; nothing is requeued.
func (ep *EventProcessor) PushStock(ctx context.Context, sku string, quantity int) (json.RawMessage, error) {
	item, err := ep.pusher.PushStock(ctx, sku, quantity)
	if err != nil {
		failed := events.New(events.PushFailed, sku, quantity)
		failed.Channel = string(models.ChannelMeli)
		failed.Message = err.Error()
		if perr := ep.publisher.Publish(ctx, failed); perr != nil {
			ep.logger.Warn("Failed to publish %s: %v", failed.Type, perr)
		}
		return nil, err
	}

	if _, err := ep.stock.SetStock(ctx, sku, models.ChannelMeli, quantity); err != nil {
		if !errors.Is(err, inventory.ErrNotFound) {
			return item, err
		}
		ep.logger.Warn("Pushed %s but it is not in the inventory", sku)
	}

	pushed := events.New(events.Pushed, sku, quantity)
	pushed.Channel = string(models.ChannelMeli)
	if err := ep.publisher.Publish(ctx, pushed); err != nil {
		ep.logger.Warn("Failed to publish %s: %v", pushed.Type, err)
	}
	ep.logger.Info("Pushed stock %d for %s", quantity, sku)
	return item, nil
}
