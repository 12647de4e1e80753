package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/garyjia/claim-intake/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newEvent(t event.Type) *event.Event {
	return event.NewEvent(t, "run-1", "doc-1", map[string]interface{}{"k": "v"})
}

func TestPublish_RoutesByType(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var routed, all []event.Type
	d.Subscribe(event.TypeClaimRouted, "routed", func(_ context.Context, e *event.Event) error {
		routed = append(routed, e.Type)
		return nil
	})
	d.SubscribeAll("all", func(_ context.Context, e *event.Event) error {
		all = append(all, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), newEvent(event.TypeClaimReceived)))
	require.NoError(t, d.Publish(context.Background(), newEvent(event.TypeClaimRouted)))

	assert.Equal(t, []event.Type{event.TypeClaimRouted}, routed)
	assert.Equal(t, []event.Type{event.TypeClaimReceived, event.TypeClaimRouted}, all)
}

func TestPublish_RunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	errA := errors.New("a failed")

	var ran []string
	d.SubscribeAll("a", func(context.Context, *event.Event) error {
		ran = append(ran, "a")
		return errA
	})
	d.SubscribeAll("b", func(context.Context, *event.Event) error {
		ran = append(ran, "b")
		panic("boom")
	})
	d.SubscribeAll("c", func(context.Context, *event.Event) error {
		ran = append(ran, "c")
		return nil
	})

	err := d.Publish(context.Background(), newEvent(event.TypeClaimFailed))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.Contains(t, err.Error(), "handler panic")
	assert.Equal(t, []string{"a", "b", "c"}, ran)
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	noop := func(context.Context, *event.Event) error { return nil }

	d.Subscribe(event.TypeClaimRouted, "keep", noop)
	d.Subscribe(event.TypeClaimRouted, "drop", noop)
	d.SubscribeAll("drop", noop)

	d.Unsubscribe("drop")

	handlers := d.Handlers(event.TypeClaimRouted)
	require.Len(t, handlers, 1)
	assert.Equal(t, "keep", handlers[0].Name)
}

func TestPublishAsync_CloseWaits(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var count atomic.Int32
	d.SubscribeAll("count", func(context.Context, *event.Event) error {
		count.Add(1)
		return nil
	})

	for i := 0; i < 20; i++ {
		d.PublishAsync(context.Background(), newEvent(event.TypeClaimValidated))
	}
	require.NoError(t, d.Close())
	assert.Equal(t, int32(20), count.Load())

	assert.ErrorIs(t, d.Publish(context.Background(), newEvent(event.TypeClaimValidated)), ErrClosed)
	d.PublishAsync(context.Background(), newEvent(event.TypeClaimValidated))
	assert.Equal(t, int32(20), count.Load())
	assert.ErrorIs(t, d.Close(), ErrClosed)
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	noop := func(context.Context, *event.Event) error { return nil }

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.SubscribeAll("h", noop)
		}()
		go func() {
			defer wg.Done()
			_ = d.Publish(context.Background(), newEvent(event.TypeClaimReceived))
		}()
	}
	wg.Wait()

	assert.Len(t, d.Handlers(event.TypeClaimReceived), 10)
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := LogHandler(zap.New(core))

	require.NoError(t, h(context.Background(), newEvent(event.TypeClaimRouted)))

	entries := logs.FilterMessage("Pipeline event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "claim.routed", fields["event_type"])
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "v", fields["k"])
}
