package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"stockhub/internal/events"
	"stockhub/internal/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func mustJSON(t *testing.T, e events.Event) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestWorkerProcessesUntilCancelled(t *testing.T) {
	good := events.New(events.PushRequested, "OT-HD-001", 7)
	failing := events.New(events.PushRequested, "BROKEN", 1)
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: mustJSON(t, good)},
		{Value: []byte("not json")},
		{Value: mustJSON(t, failing)},
		{Value: mustJSON(t, events.New(events.StockChanged, "OT-HD-001", 3))},
	}}

	var mu sync.Mutex
	var seen []string
	processor := ProcessorFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.SKU)
		mu.Unlock()
		if e.SKU == "BROKEN" {
			return errors.New("push failed")
		}
		return nil
	})

	w := New(reader, processor, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	w.Stop()
	assert.True(t, reader.closed)
	assert.Equal(t, []string{"OT-HD-001", "BROKEN", "OT-HD-001"}, seen)
}

type erroringReader struct {
	mu    sync.Mutex
	errs  []error
	reads int
}

func (r *erroringReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if len(r.errs) == 0 {
		return kafka.Message{}, io.EOF
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return kafka.Message{}, err
}

func (r *erroringReader) Close() error { return nil }

func TestWorkerStopsWhenReaderIsClosed(t *testing.T) {
	reader := &erroringReader{errs: []error{errors.New("broker unavailable")}}
	w := New(reader, ProcessorFunc(func(ctx context.Context, e events.Event) error { return nil }), logger.NewNop())
	w.retryDelay = 20 * time.Millisecond

	start := time.Now()
	err := w.Start(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, reader.reads)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWorkerReadErrorsWaitForCancel(t *testing.T) {
	reader := &erroringReader{errs: []error{
		errors.New("broker unavailable"),
		errors.New("broker unavailable"),
		errors.New("broker unavailable"),
	}}
	w := New(reader, ProcessorFunc(func(ctx context.Context, e events.Event) error { return nil }), logger.NewNop())
	w.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, 1, reader.reads)
}

func TestBusConsumerProcessesPublishedEvents(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var seen []events.Type
	processor := ProcessorFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	})

	c := NewBusConsumer(bus, 8, processor, logger.NewNop())
	require.NoError(t, bus.Publish(context.Background(), events.New(events.PushRequested, "OT-HD-001", 3)))

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	assert.NoError(t, <-done)
	assert.Zero(t, bus.Subscribers())
	assert.Equal(t, []events.Type{events.PushRequested}, seen)
}
