package processors

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"stockhub/internal/events"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	calls []int
	err   error
}

func (f *fakePusher) PushStock(ctx context.Context, sku string, quantity int) (json.RawMessage, error) {
	f.calls = append(f.calls, quantity)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"id":"MLA100"}`), nil
}

type fakeRecorder struct {
	set map[string]int
	err error
}

func (f *fakeRecorder) SetStock(ctx context.Context, sku string, channel models.Channel, quantity int) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.set[sku+"/"+string(channel)] = quantity
	return &models.Product{SKU: sku, StockMeli: quantity}, nil
}

func newProcessor(p *fakePusher, r *fakeRecorder) (*EventProcessor, <-chan events.Event) {
	bus := events.NewBus()
	ch, _ := bus.Subscribe(8)
	return NewEventProcessor(p, r, bus, logger.NewNop()), ch
}

func TestProcessPushRequested(t *testing.T) {
	pusher := &fakePusher{}
	rec := &fakeRecorder{set: map[string]int{}}
	ep, ch := newProcessor(pusher, rec)

	require.NoError(t, ep.Process(context.Background(), events.New(events.PushRequested, "OT-HD-001", 7)))

	assert.Equal(t, []int{7}, pusher.calls)
	assert.Equal(t, 7, rec.set["OT-HD-001/meli"])
	got := <-ch
	assert.Equal(t, events.Pushed, got.Type)
	assert.Equal(t, "meli", got.Channel)
}

func TestProcessPushFailure(t *testing.T) {
	pusher := &fakePusher{err: errors.New("meli: token rejected after refresh")}
	rec := &fakeRecorder{set: map[string]int{}}
	ep, ch := newProcessor(pusher, rec)

	err := ep.Process(context.Background(), events.New(events.PushRequested, "OT-HD-001", 7))

	assert.Error(t, err)
	assert.Len(t, pusher.calls, 1)
	assert.Empty(t, rec.set)
	got := <-ch
	assert.Equal(t, events.PushFailed, got.Type)
	assert.Contains(t, got.Message, "rejected")
}

func TestProcessUnknownProductStillAnnounces(t *testing.T) {
	rec := &fakeRecorder{err: inventory.ErrNotFound}
	ep, ch := newProcessor(&fakePusher{}, rec)

	require.NoError(t, ep.Process(context.Background(), events.New(events.PushRequested, "ONLY-ON-MELI", 1)))
	assert.Equal(t, events.Pushed, (<-ch).Type)
}

func TestProcessSkipsOtherEvents(t *testing.T) {
	pusher := &fakePusher{}
	ep, ch := newProcessor(pusher, &fakeRecorder{set: map[string]int{}})

	require.NoError(t, ep.Process(context.Background(), events.New(events.StockChanged, "OT-HD-001", 3)))
	assert.Empty(t, pusher.calls)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestPushStockReturnsItem(t *testing.T) {
	ep, _ := newProcessor(&fakePusher{}, &fakeRecorder{set: map[string]int{}})

	item, err := ep.PushStock(context.Background(), "OT-HD-001", 7)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"MLA100"}`, string(item))
}
