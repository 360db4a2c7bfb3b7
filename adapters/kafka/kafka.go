package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
)

const pollBackoff = 500 * time.Millisecond

// Writer is a minimal Kafka-like writer interface.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Record is a consumed message.
type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Consumer reads records for one topic within one consumer group.
type Consumer interface {
	// Poll blocks until records are available or ctx is done.
	Poll(ctx context.Context) ([]Record, error)
	Close()
}

// ConsumerFactory opens a Consumer for topic in group.
type ConsumerFactory func(topic, group string) (Consumer, error)

type consumerLoop struct {
	consumer Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// Transport implements cbus.EventBus using an injected Writer and ConsumerFactory.
type Transport struct {
	Writer     Writer
	Consumers  ConsumerFactory
	Propagator cbus.HeaderPropagator

	bus *eventbus.Bus

	mu     sync.Mutex
	loops  map[string]*consumerLoop // canonical event name -> poll loop
	closed bool
}

var _ cbus.EventBus = (*Transport)(nil)

// New creates a Kafka transport. A nil factory makes the transport publish-only.
func New(w Writer, cf ConsumerFactory, b *eventbus.Bus) *Transport {
	return NewWithPropagator(w, cf, b, cbus.NopHeaderPropagator{})
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(w Writer, cf ConsumerFactory, b *eventbus.Bus, hp cbus.HeaderPropagator) *Transport {
	if hp == nil {
		hp = cbus.NopHeaderPropagator{}
	}

	return &Transport{Writer: w, Consumers: cf, Propagator: hp, bus: b, loops: make(map[string]*consumerLoop)}
}

// Publish writes the event to the topic named after its canonical event name, keyed by event ID.
func (t *Transport) Publish(ctx context.Context, e cbus.IntegrationEvent) error {
	if err := t.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	if t.Writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrPublishFailed)
	}

	name, val, err := t.bus.Encode(e)
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	id := e.EventMeta().ID.String()
	headers := map[string]string{
		"content-type": t.bus.Serializer().ContentType(),
		"event-id":     id,
	}
	t.Propagator.Inject(ctx, headers)

	if err = t.Writer.Write(ctx, name, []byte(id), val, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka publish write: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe registers the handler; the first handler for an event opens a consumer in the
// subscriber-name group and starts polling it.
func (t *Transport) Subscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := t.ready(ctx, berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return err
	}

	if t.Consumers == nil {
		return fmt.Errorf("kafka subscribe: %w", berr.ErrSubscribeFailed)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	first, err := t.bus.AddSubscription(sub)
	if err != nil || !first {
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)

	c, err := t.Consumers(name, t.bus.SubscriberName(sub.EventType.Name))
	if err != nil {
		_, _ = t.bus.RemoveSubscription(sub)
		return fmt.Errorf("kafka subscribe %s: %w", name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loop := &consumerLoop{consumer: c, cancel: cancel, done: make(chan struct{})}
	t.loops[name] = loop

	go t.poll(pollCtx, loop)

	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()

	last, err := t.bus.RemoveSubscription(sub)
	if err != nil || !last {
		t.mu.Unlock()
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)
	loop, ok := t.loops[name]
	delete(t.loops, name)
	t.mu.Unlock()

	if ok {
		loop.stop()
	}

	return nil
}

// Close stops every poll loop, clears the registry and releases the bus configuration.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	loops := t.loops
	t.loops = make(map[string]*consumerLoop)
	t.mu.Unlock()

	for _, l := range loops {
		l.stop()
	}

	t.bus.Subscriptions().Clear()

	return t.bus.Close()
}

func (t *Transport) poll(ctx context.Context, l *consumerLoop) {
	defer close(l.done)

	for {
		recs, err := l.consumer.Poll(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			t.bus.Logger().WarnContext(ctx, "kafka poll failed", "err", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}

			continue
		}

		for _, r := range recs {
			rctx := t.Propagator.Extract(ctx, r.Headers)

			if _, err := t.bus.ProcessEvent(rctx, r.Topic, r.Value); err != nil {
				t.bus.Logger().ErrorContext(rctx, "kafka dispatch failed", "event", r.Topic, "err", err)
			}
		}
	}
}

func (l *consumerLoop) stop() {
	l.cancel()
	<-l.done
	l.consumer.Close()
}

func (t *Transport) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.bus == nil {
		return fmt.Errorf("kafka %s: %w", label, base)
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return fmt.Errorf("kafka %s: %w", label, berr.ErrTransportClosed)
	}

	return nil
}
