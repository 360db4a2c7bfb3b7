package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
)

// Transport is a thread-safe in-process implementation of cbus.EventBus.
// Publish serializes the event and dispatches it synchronously through the bus,
// recording every published event for tests and examples.
type Transport struct {
	bus *eventbus.Bus

	mu     sync.Mutex
	Events []cbus.IntegrationEvent
	closed bool
}

// Ensure Transport implements the transport contract.
var _ cbus.EventBus = (*Transport)(nil)

// New creates a new in-memory transport over b.
func New(b *eventbus.Bus) *Transport { return &Transport{bus: b} }

// Bus returns the underlying event bus core.
func (t *Transport) Bus() *eventbus.Bus { return t.bus }

func (t *Transport) Publish(ctx context.Context, e cbus.IntegrationEvent) error {
	if err := t.ready(ctx, "publish"); err != nil {
		return err
	}

	name, body, err := t.bus.Encode(e)
	if err != nil {
		return fmt.Errorf("inmemory publish: %w", err)
	}

	t.mu.Lock()
	t.Events = append(t.Events, e)
	t.mu.Unlock()

	if _, err := t.bus.ProcessEvent(ctx, name, body); err != nil {
		return fmt.Errorf("inmemory publish %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := t.ready(ctx, "subscribe"); err != nil {
		return err
	}

	_, err := t.bus.AddSubscription(sub)

	return err
}

func (t *Transport) Unsubscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := t.ready(ctx, "unsubscribe"); err != nil {
		return err
	}

	_, err := t.bus.RemoveSubscription(sub)

	return err
}

// Published returns a copy of the recorded events.
func (t *Transport) Published() []cbus.IntegrationEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]cbus.IntegrationEvent(nil), t.Events...)
}

// Close clears subscriptions and releases the bus configuration.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	t.mu.Unlock()

	t.bus.Subscriptions().Clear()

	return t.bus.Close()
}

func (t *Transport) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed || t.bus == nil {
		return fmt.Errorf("inmemory %s: %w", label, berr.ErrTransportClosed)
	}

	return nil
}
