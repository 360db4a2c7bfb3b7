package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-event-bus/adapters/kafka"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/next-trace/scg-event-bus/resolver"
)

type write struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []write
	err   error
}

func (f *fakeWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, write{topic, key, value, headers})

	return f.err
}

// fakeConsumer hands out records pushed onto feed.
type fakeConsumer struct {
	topic, group string
	feed         chan kafka.Record
	closed       chan struct{}
}

func (c *fakeConsumer) Poll(ctx context.Context) ([]kafka.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-c.feed:
		return []kafka.Record{r}, nil
	}
}

func (c *fakeConsumer) Close() { close(c.closed) }

type factory struct {
	mu        sync.Mutex
	consumers []*fakeConsumer
	err       error
}

func (f *factory) open(topic, group string) (kafka.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	c := &fakeConsumer{topic: topic, group: group, feed: make(chan kafka.Record), closed: make(chan struct{})}
	f.consumers = append(f.consumers, c)

	return c, nil
}

type OrderCreatedIntegrationEvent struct {
	cbus.Event
	OrderID string `json:"orderId"`
}

type billing struct{ got chan string }

func (h billing) Handle(ctx context.Context, e OrderCreatedIntegrationEvent) error {
	h.got <- e.OrderID
	return nil
}

type audit struct{}

func (audit) Handle(ctx context.Context, e OrderCreatedIntegrationEvent) error { return nil }

func newBus(t *testing.T, got chan string) *eventbus.Bus {
	t.Helper()

	c := resolver.New(nil)
	_ = resolver.Provide(c, resolver.Singleton, func(context.Context) (billing, error) { return billing{got: got}, nil })
	_ = resolver.Provide(c, resolver.Singleton, func(context.Context) (audit, error) { return audit{}, nil })

	cfg := eventbus.DefaultConfig()
	cfg.SubscriberClientAppName = "Billing"

	return eventbus.New(cfg, c)
}

func TestKafka_PublishWritesCanonicalTopic(t *testing.T) {
	fw := &fakeWriter{}
	tr := kafka.New(fw, nil, newBus(t, nil))

	ev := OrderCreatedIntegrationEvent{Event: cbus.NewEvent(), OrderID: "9"}
	if err := tr.Publish(t.Context(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fw.calls) != 1 {
		t.Fatalf("want 1, got %d", len(fw.calls))
	}

	c := fw.calls[0]
	if c.topic != "OrderCreated" {
		t.Fatalf("topic: %s", c.topic)
	}

	if string(c.key) != ev.ID.String() || c.headers["event-id"] != ev.ID.String() {
		t.Fatalf("key/header: %s %v", c.key, c.headers)
	}

	if c.headers["content-type"] != "application/json" || len(c.value) == 0 {
		t.Fatalf("payload: %v %q", c.headers, c.value)
	}
}

func TestKafka_SubscribePollsAndDispatches(t *testing.T) {
	got := make(chan string, 1)
	f := &factory{}
	fw := &fakeWriter{}
	tr := kafka.New(fw, f.open, newBus(t, got))

	t.Cleanup(func() { _ = tr.Close() })

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, audit](t.Context(), tr); err != nil {
		t.Fatalf("subscribe second: %v", err)
	}

	if len(f.consumers) != 1 {
		t.Fatalf("want one consumer per event, got %d", len(f.consumers))
	}

	c := f.consumers[0]
	if c.topic != "OrderCreated" || c.group != "Billing.OrderCreated" {
		t.Fatalf("consumer: %s/%s", c.topic, c.group)
	}

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{OrderID: "11"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	w := fw.calls[0]
	c.feed <- kafka.Record{Topic: w.topic, Key: w.key, Value: w.value, Headers: w.headers}

	select {
	case id := <-got:
		if id != "11" {
			t.Fatalf("got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record was not dispatched")
	}
}

func TestKafka_UnsubscribeLastClosesConsumer(t *testing.T) {
	f := &factory{}
	tr := kafka.New(&fakeWriter{}, f.open, newBus(t, make(chan string, 1)))

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, audit](t.Context(), tr); err != nil {
		t.Fatalf("subscribe second: %v", err)
	}

	if err := eventbus.Unsubscribe[OrderCreatedIntegrationEvent, audit](t.Context(), tr); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	c := f.consumers[0]

	select {
	case <-c.closed:
		t.Fatal("consumer closed while a handler remains")
	default:
	}

	if err := eventbus.Unsubscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("unsubscribe last: %v", err)
	}

	select {
	case <-c.closed:
	default:
		t.Fatal("consumer should be closed after the last handler")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafka_SubscribeFailureRollsBack(t *testing.T) {
	f := &factory{err: errors.New("no brokers")}
	b := newBus(t, nil)
	tr := kafka.New(&fakeWriter{}, f.open, b)

	err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr)
	if !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}

	if !b.Subscriptions().IsEmpty() {
		t.Fatal("registry should be rolled back")
	}
}

func TestKafka_PublishOnlyTransportRejectsSubscribe(t *testing.T) {
	tr := kafka.New(&fakeWriter{}, nil, newBus(t, nil))

	err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr)
	if !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}

func TestKafka_ErrorsWrapped(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	tr := kafka.New(fw, nil, newBus(t, nil))

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	fw.err = context.DeadlineExceeded
	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("context errors pass through unwrapped, got %v", err)
	}

	if err := kafka.New(nil, nil, newBus(t, nil)).Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("nil writer: %v", err)
	}
}

func TestKafka_ClosedTransport(t *testing.T) {
	tr := kafka.New(&fakeWriter{}, nil, newBus(t, nil))
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrTransportClosed) {
		t.Fatalf("want ErrTransportClosed, got %v", err)
	}
}

func TestNewWithKgo_NoBrokers(t *testing.T) {
	_, _, err := kafka.NewWithKgo(kafka.Config{}, eventbus.New(eventbus.DefaultConfig(), nil))
	if !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}
