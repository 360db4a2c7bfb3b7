package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
)

// MsgHandler receives one inbound message.
type MsgHandler func(data []byte, headers map[string]string)

// Subscription is a broker-side subscription that can be released.
type Subscription interface {
	Unsubscribe() error
}

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// QueueSubscribe delivers each message of subject to one member of the queue group.
	QueueSubscribe(subject, queue string, h MsgHandler) (Subscription, error)
}

// Transport implements cbus.EventBus over an injected NATS-like Client.
// Events travel on subject "{topic}.{canonical name}"; every subscriber name is a
// queue group, so each consuming application receives an event once.
type Transport struct {
	Client     Client
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers

	bus *eventbus.Bus

	mu     sync.Mutex
	subs   map[string]Subscription
	closed bool
}

// Ensure Transport implements the transport contract.
var _ cbus.EventBus = (*Transport)(nil)

// New creates a new NATS transport with the provided client.
func New(c Client, b *eventbus.Bus) *Transport {
	return NewWithPropagator(c, b, cbus.NopHeaderPropagator{})
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(c Client, b *eventbus.Bus, hp cbus.HeaderPropagator) *Transport {
	if hp == nil {
		hp = cbus.NopHeaderPropagator{}
	}

	return &Transport{Client: c, Propagator: hp, bus: b, subs: make(map[string]Subscription)}
}

func (t *Transport) Publish(ctx context.Context, e cbus.IntegrationEvent) error {
	if err := t.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	name, body, err := t.bus.Encode(e)
	if err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	headers := map[string]string{
		"content-type": t.bus.Serializer().ContentType(),
		"event-id":     e.EventMeta().ID.String(),
	}
	t.Propagator.Inject(ctx, headers)

	if err := t.Client.Publish(t.subject(name), body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := t.ready(ctx, berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	first, err := t.bus.AddSubscription(sub)
	if err != nil || !first {
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)
	queue := t.bus.SubscriberName(sub.EventType.Name)

	s, err := t.Client.QueueSubscribe(t.subject(name), queue, func(data []byte, headers map[string]string) {
		t.dispatch(name, data, headers)
	})
	if err != nil {
		_, _ = t.bus.RemoveSubscription(sub)
		return fmt.Errorf("nats subscribe %s: %w", name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	t.subs[name] = s

	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, err := t.bus.RemoveSubscription(sub)
	if err != nil || !last {
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)

	s, ok := t.subs[name]
	if !ok {
		return nil
	}

	delete(t.subs, name)

	if err := s.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", name, err)
	}

	return nil
}

// Close releases every broker subscription, clears the registry and the bus configuration.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	subs := t.subs
	t.subs = make(map[string]Subscription)
	t.mu.Unlock()

	var errs []error

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}

	t.bus.Subscriptions().Clear()
	errs = append(errs, t.bus.Close())

	return errors.Join(errs...)
}

func (t *Transport) dispatch(name string, data []byte, headers map[string]string) {
	ctx := t.Propagator.Extract(context.Background(), headers)

	if _, err := t.bus.ProcessEvent(ctx, name, data); err != nil {
		t.bus.Logger().ErrorContext(ctx, "nats dispatch failed", "event", name, "err", err)
	}
}

func (t *Transport) subject(name string) string {
	if topic := t.bus.TopicName(); topic != "" {
		return topic + "." + name
	}

	return name
}

func (t *Transport) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Client == nil || t.bus == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return fmt.Errorf("nats %s: %w", label, berr.ErrTransportClosed)
	}

	return nil
}
