package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/claim-intake/internal/domain/event"
	"go.uber.org/zap"
)

// ErrClosed is returned when publishing on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher fans pipeline events out to registered handlers
type Dispatcher interface {
	// Subscribe registers a named handler for one event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a named handler for every event type
	SubscribeAll(name string, handler Handler)

	// Unsubscribe removes every handler registered under name
	Unsubscribe(name string)

	// Publish runs all matching handlers in registration order. Every
	// handler runs; their errors are joined.
	Publish(ctx context.Context, evt *event.Event) error

	// PublishAsync runs matching handlers in the background
	PublishAsync(ctx context.Context, evt *event.Event)

	// Handlers returns the handlers that would receive an event type
	Handlers(eventType event.Type) []HandlerInfo

	// Close waits for background handlers and rejects further publishing
	Close() error
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers []HandlerInfo
	logger   *zap.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(logger *zap.Logger) Dispatcher {
	return &eventDispatcher{logger: logger}
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.add(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.add(HandlerInfo{Name: name, AllTypes: true, Handler: handler})
}

func (d *eventDispatcher) add(info HandlerInfo) {
	d.mu.Lock()
	d.handlers = append(d.handlers, info)
	d.mu.Unlock()

	d.logger.Debug("Event handler registered",
		zap.String("handler", info.Name),
		zap.String("event_type", info.EventType.String()),
		zap.Bool("all_types", info.AllTypes))
}

func (d *eventDispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[:0:0]
	for _, h := range d.handlers {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers = kept
}

func (d *eventDispatcher) Handlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []HandlerInfo
	for _, h := range d.handlers {
		if h.AllTypes || h.EventType == eventType {
			out = append(out, h)
		}
	}
	return out
}

func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	var errs []error
	for _, h := range d.Handlers(evt.Type) {
		if err := d.safeExecute(ctx, evt, h); err != nil {
			d.logger.Warn("Event handler failed",
				zap.String("handler", h.Name),
				zap.String("event_type", evt.Type.String()),
				zap.String("event_id", evt.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("handler %s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) PublishAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logger.Warn("Dropping event on closed dispatcher",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID))
		return
	}

	for _, h := range d.Handlers(evt.Type) {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()
			if err := d.safeExecute(ctx, evt, h); err != nil {
				d.logger.Warn("Async event handler failed",
					zap.String("handler", h.Name),
					zap.String("event_type", evt.Type.String()),
					zap.String("event_id", evt.ID),
					zap.Error(err))
			}
		}(h)
	}
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	d.wg.Wait()
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return info.Handler(ctx, evt)
}
