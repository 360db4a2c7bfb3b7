package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/next-trace/scg-event-bus/adapters/redis"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/next-trace/scg-event-bus/propagation"
	"github.com/next-trace/scg-event-bus/resolver"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type OrderCreatedIntegrationEvent struct {
	cbus.Event
	OrderID string `json:"orderId"`
}

type delivery struct {
	orderID string
	traceID trace.TraceID
}

type billing struct{ got chan delivery }

func (h billing) Handle(ctx context.Context, e OrderCreatedIntegrationEvent) error {
	h.got <- delivery{orderID: e.OrderID, traceID: trace.SpanContextFromContext(ctx).TraceID()}
	return nil
}

func newBus(t *testing.T, got chan delivery) *eventbus.Bus {
	t.Helper()

	c := resolver.New(nil)
	_ = resolver.Provide(c, resolver.Scoped, func(context.Context) (billing, error) { return billing{got: got}, nil })

	cfg := eventbus.DefaultConfig()
	cfg.SubscriberClientAppName = "Billing"

	return eventbus.New(cfg, c)
}

func newClient(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})

	t.Cleanup(func() { _ = rc.Close() })

	return mr, rc
}

func TestRedis_PublishSubscribeRoundTrip(t *testing.T) {
	got := make(chan delivery, 1)
	mr, rc := newClient(t)

	tr := redis.NewWithPropagator(rc, newBus(t, got), propagation.New())
	t.Cleanup(func() { _ = tr.Close() })

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if n := mr.PubSubNumSub("EventBus.OrderCreated"); n["EventBus.OrderCreated"] != 1 {
		t.Fatalf("subscribers: %v", n)
	}

	tid := trace.TraceID{0x0a, 0x0b}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: trace.SpanID{1}, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	if err := tr.Publish(ctx, OrderCreatedIntegrationEvent{Event: cbus.NewEvent(), OrderID: "5"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case d := <-got:
		if d.orderID != "5" {
			t.Fatalf("order: %s", d.orderID)
		}

		if d.traceID != tid {
			t.Fatalf("trace not propagated: %s", d.traceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRedis_UnsubscribeLastClosesPubSub(t *testing.T) {
	mr, rc := newClient(t)
	tr := redis.New(rc, newBus(t, make(chan delivery, 1)))

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := eventbus.Unsubscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub("EventBus.OrderCreated")["EventBus.OrderCreated"] != 0 {
		if time.Now().After(deadline) {
			t.Fatal("channel still subscribed")
		}

		time.Sleep(10 * time.Millisecond)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedis_ErrorsWrapped(t *testing.T) {
	mr, rc := newClient(t)
	tr := redis.New(rc, newBus(t, nil))

	mr.Close()

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	b := newBus(t, nil)
	tr = redis.New(rc, b)

	if err := eventbus.Subscribe[OrderCreatedIntegrationEvent, billing](t.Context(), tr); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}

	if !b.Subscriptions().IsEmpty() {
		t.Fatal("registry should be rolled back")
	}
}

func TestRedis_ClosedAndNilClient(t *testing.T) {
	if err := redis.New(nil, newBus(t, nil)).Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("nil client: %v", err)
	}

	_, rc := newClient(t)
	tr := redis.New(rc, newBus(t, nil))

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrTransportClosed) {
		t.Fatalf("want ErrTransportClosed, got %v", err)
	}
}

func TestNewWithRedis(t *testing.T) {
	b := eventbus.New(eventbus.DefaultConfig(), nil)

	if _, _, err := redis.NewWithRedis(t.Context(), redis.Config{}, b); !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}

	mr := miniredis.RunT(t)

	tr, cleanup, err := redis.NewWithRedis(t.Context(), redis.Config{Addrs: []string{mr.Addr()}}, b)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	cleanup()

	if err := tr.Publish(t.Context(), OrderCreatedIntegrationEvent{}); !errors.Is(err, berr.ErrTransportClosed) {
		t.Fatalf("after cleanup: %v", err)
	}
}
