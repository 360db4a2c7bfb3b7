// Package redis provides a Redis Pub/Sub transport for the event bus.
// Every process subscribed to a channel receives every event; Redis has no queue groups.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope carries headers alongside the body since Pub/Sub messages have none.
type envelope struct {
	Headers map[string]string `msgpack:"h,omitempty"`
	Body    []byte            `msgpack:"b"`
}

// Transport implements cbus.EventBus over Redis Pub/Sub.
type Transport struct {
	Client     goredis.UniversalClient
	Propagator cbus.HeaderPropagator

	bus *eventbus.Bus

	mu     sync.Mutex
	subs   map[string]*goredis.PubSub // canonical event name -> subscription
	closed bool
	wg     sync.WaitGroup
}

var _ cbus.EventBus = (*Transport)(nil)

func New(c goredis.UniversalClient, b *eventbus.Bus) *Transport {
	return NewWithPropagator(c, b, cbus.NopHeaderPropagator{})
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(c goredis.UniversalClient, b *eventbus.Bus, hp cbus.HeaderPropagator) *Transport {
	if hp == nil {
		hp = cbus.NopHeaderPropagator{}
	}

	return &Transport{Client: c, Propagator: hp, bus: b, subs: make(map[string]*goredis.PubSub)}
}

func (t *Transport) channel(name string) string { return t.bus.TopicName() + "." + name }

func (t *Transport) Publish(ctx context.Context, e cbus.IntegrationEvent) error {
	if err := t.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	name, body, err := t.bus.Encode(e)
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	env := envelope{Headers: map[string]string{"event-id": e.EventMeta().ID.String()}, Body: body}
	t.Propagator.Inject(ctx, env.Headers)

	msg, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis publish envelope: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := t.Client.Publish(ctx, t.channel(name), msg).Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("redis publish %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
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
	ps := t.Client.Subscribe(ctx, t.channel(name))

	// wait for the subscription confirmation so publishes after Subscribe are seen
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_, _ = t.bus.RemoveSubscription(sub)

		return fmt.Errorf("redis subscribe %s: %w", name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	t.subs[name] = ps

	t.wg.Add(1)

	go t.consume(ps.Channel())

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
	if ps, ok := t.subs[name]; ok {
		delete(t.subs, name)
		return ps.Close()
	}

	return nil
}

// Close closes every subscription, waits for in-flight messages, clears the registry
// and releases the bus configuration. The client belongs to the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	subs := t.subs
	t.subs = make(map[string]*goredis.PubSub)
	t.mu.Unlock()

	var errs []error

	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	t.wg.Wait()

	t.bus.Subscriptions().Clear()
	errs = append(errs, t.bus.Close())

	return errors.Join(errs...)
}

func (t *Transport) consume(ch <-chan *goredis.Message) {
	defer t.wg.Done()

	prefix := t.bus.TopicName() + "."

	for m := range ch {
		name := strings.TrimPrefix(m.Channel, prefix)

		var env envelope
		if err := msgpack.Unmarshal([]byte(m.Payload), &env); err != nil {
			t.bus.Logger().Warn("redis envelope undecodable", "channel", m.Channel, "err", err)
			continue
		}

		ctx := t.Propagator.Extract(context.Background(), env.Headers)

		if _, err := t.bus.ProcessEvent(ctx, name, env.Body); err != nil {
			t.bus.Logger().ErrorContext(ctx, "redis dispatch failed", "event", name, "err", err)
		}
	}
}

func (t *Transport) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Client == nil || t.bus == nil {
		return fmt.Errorf("redis %s: %w", label, base)
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return fmt.Errorf("redis %s: %w", label, berr.ErrTransportClosed)
	}

	return nil
}
