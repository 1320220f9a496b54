package worker

import (
	"context"

	"stockhub/internal/events"
	"stockhub/internal/logger"
)

// BusConsumer runs a processor over in-process bus events. It stands in for
// the Kafka worker when the API runs without brokers.
type BusConsumer struct {
	logger    *logger.Logger
	events    <-chan events.Event
	cancel    func()
	processor Processor
}

// NewBusConsumer subscribes immediately, so events published after it
// returns are delivered even before Start runs.
func NewBusConsumer(bus *events.Bus, buffer int, processor Processor, logger *logger.Logger) *BusConsumer {
	ch, cancel := bus.Subscribe(buffer)
	return &BusConsumer{
		logger:    logger,
		events:    ch,
		cancel:    cancel,
		processor: processor,
	}
}

// Start handles events until ctx is cancelled or Stop is called.
func (c *BusConsumer) Start(ctx context.Context) error {
	c.logger.Info("Bus consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-c.events:
			if !ok {
				return nil
			}
			if err := c.processor.Process(ctx, event); err != nil {
				c.logger.Error("Failed to process %s for %s: %v", event.Type, event.SKU, err)
			}
		}
	}
}

func (c *BusConsumer) Stop() {
	c.cancel()
}
