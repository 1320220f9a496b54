package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"stockhub/internal/config"
	"stockhub/internal/events"
	"stockhub/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the worker needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Processor interface {
	Process(ctx context.Context, e events.Event) error
}

// ProcessorFunc adapts a plain function, such as a Bus's Publish, to Processor.
type ProcessorFunc func(ctx context.Context, e events.Event) error

func (f ProcessorFunc) Process(ctx context.Context, e events.Event) error {
	return f(ctx, e)
}

type Worker struct {
	logger     *logger.Logger
	reader     MessageReader
	processor  Processor
	retryDelay time.Duration
}

// NewReader builds a consumer-group reader for the stock events topic.
func NewReader(cfg *config.Config, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(cfg.KafkaBrokers, ","),
		GroupID:        groupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
}

func New(reader MessageReader, processor Processor, logger *logger.Logger) *Worker {
	return &Worker{
		logger:     logger,
		reader:     reader,
		processor:  processor,
		retryDelay: time.Second,
	}
}

// Start handles one message at a time until ctx is cancelled. Bad messages
// and processing failures are logged and skipped.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started, listening for events...")

	for {
		message, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			if errors.Is(err, io.EOF) {
				w.logger.Info("Reader closed, worker exiting")
				return nil
			}
			w.logger.Error("Failed to read message: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryDelay):
			}
			continue
		}

		w.logger.Debug("Received message: %s", string(message.Value))

		event, err := events.Decode(message.Value)
		if err != nil {
			w.logger.Error("Failed to parse event: %v", err)
			continue
		}

		if err := w.processor.Process(ctx, event); err != nil {
			w.logger.Error("Failed to process %s for %s: %v", event.Type, event.SKU, err)
			continue
		}

		w.logger.Debug("Event %s processed successfully", event.ID)
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.reader.Close()
}
