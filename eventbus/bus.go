package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/next-trace/scg-event-bus/codec"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/subscriptions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Bus is the transport-independent half of an event bus. Transports embed or hold a
// Bus, use it to name broker resources and track subscriptions, and hand every
// inbound message to ProcessEvent.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	cfg atomic.Pointer[Config]

	// serializes registry mutations so first/last decisions are exact
	subMu   sync.Mutex
	subs    cbus.SubscriptionManager
	removed atomic.Pointer[string] // last canonical name reported by the registry

	resolver   cbus.Resolver
	serializer cbus.Serializer
	isolate    bool

	logger        *slog.Logger
	meterProvider metric.MeterProvider
	metrics       metrics
}

// New constructs a Bus over cfg that resolves handlers through r.
// A nil resolver resolves nothing, so every dispatch skips its handlers.
func New(cfg Config, r cbus.Resolver, opts ...Option) *Bus {
	if r == nil {
		r = nopResolver{}
	}

	b := &Bus{
		resolver:      r,
		serializer:    codec.Default(),
		isolate:       cfg.IsolateHandlerFailures,
		logger:        slog.New(slog.DiscardHandler),
		meterProvider: otel.GetMeterProvider(),
	}
	b.cfg.Store(&cfg)

	for _, opt := range opts {
		opt(b)
	}

	if b.subs == nil {
		b.subs = subscriptions.NewManager(b.ProcessEventName)
	}

	b.subs.OnEventRemoved(func(eventName string) {
		b.removed.Store(&eventName)
		b.logger.Debug("event released", "event", eventName)
	})

	b.metrics = newMetrics(b.meterProvider)

	return b
}

// Subscriptions returns the subscription registry.
func (b *Bus) Subscriptions() cbus.SubscriptionManager { return b.subs } //nolint:ireturn

// Serializer returns the payload serializer.
func (b *Bus) Serializer() cbus.Serializer { return b.serializer } //nolint:ireturn

// Logger returns the bus logger for transports to share.
func (b *Bus) Logger() *slog.Logger { return b.logger }

// AddSubscription registers sub and reports whether it is the first handler of its
// canonical event name, in which case the transport binds broker resources.
func (b *Bus) AddSubscription(sub cbus.Subscription) (bool, error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	key := b.subs.GetEventKey(sub.EventType.Name)
	first := !b.subs.HasSubscriptionsForEvent(key)

	if err := b.subs.AddSubscription(sub); err != nil {
		return false, err
	}

	b.logger.Debug("subscribed", "event", key, "handler", sub.Info.HandlerType)

	return first, nil
}

// RemoveSubscription unregisters sub and reports whether it removed the last handler
// of its canonical event name, in which case the transport releases broker resources.
// The answer comes from the registry's OnEventRemoved notification.
func (b *Bus) RemoveSubscription(sub cbus.Subscription) (bool, error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	key := b.subs.GetEventKey(sub.EventType.Name)
	b.removed.Store(nil)

	if err := b.subs.RemoveSubscription(sub); err != nil {
		return false, err
	}

	b.logger.Debug("unsubscribed", "event", key, "handler", sub.Info.HandlerType)

	released := b.removed.Swap(nil)

	return released != nil && *released == key, nil
}

// Encode serializes e for publishing and returns its canonical event name.
func (b *Bus) Encode(e cbus.IntegrationEvent) (string, []byte, error) {
	name := b.ProcessEventName(cbus.EventName(e))

	body, err := b.serializer.Serialize(e)
	if err != nil {
		return name, nil, fmt.Errorf("encode %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	return name, body, nil
}

// ProcessEvent dispatches one inbound message to every handler subscribed to the
// canonical form of eventName, sequentially and in registration order.
//
// It reports false when nobody subscribes to the event. Handlers that cannot be
// resolved, whose payload type is unknown, or whose payload cannot be decoded are
// skipped. A handler error aborts the dispatch and is returned, unless handler
// failures are isolated, in which case all failures are joined. The resolution
// scope is released on every path.
func (b *Bus) ProcessEvent(ctx context.Context, eventName string, message []byte) (bool, error) {
	eventName = b.ProcessEventName(eventName)

	if !b.subs.HasSubscriptionsForEvent(eventName) {
		b.metrics.event(ctx, eventName, false)
		b.logger.DebugContext(ctx, "no subscription", "event", eventName)

		return false, nil
	}

	b.metrics.event(ctx, eventName, true)

	scope := b.resolver.CreateScope(ctx)
	defer func() {
		if err := scope.Close(); err != nil {
			b.logger.WarnContext(ctx, "release scope", "event", eventName, "err", err)
		}
	}()

	fullName := b.FullEventName(eventName)

	var errs []error

	for _, sub := range b.subs.GetHandlersForEvent(eventName) {
		err := b.dispatch(ctx, scope, sub, eventName, fullName, message)
		if err == nil {
			continue
		}

		b.metrics.failure(ctx, eventName, sub.HandlerType)

		if !b.isolate {
			return true, err
		}

		b.logger.ErrorContext(ctx, "handler failed", "event", eventName, "handler", sub.HandlerType, "err", err)
		errs = append(errs, err)
	}

	return true, errors.Join(errs...)
}

func (b *Bus) dispatch(
	ctx context.Context,
	scope cbus.Scope,
	sub cbus.SubscriptionInfo,
	eventName, fullName string,
	message []byte,
) error {
	handler, ok := scope.Resolve(sub.HandlerType)
	if !ok {
		b.skip(ctx, eventName, sub.HandlerType, reasonUnresolved, nil)
		return nil
	}

	et, ok := b.subs.GetEventTypeByName(fullName)
	if !ok || et.New == nil {
		b.skip(ctx, eventName, sub.HandlerType, reasonUntyped, nil)
		return nil
	}

	target := et.New()
	if err := b.serializer.Deserialize(message, target); err != nil {
		b.skip(ctx, eventName, sub.HandlerType, reasonUndecodable, err)
		return nil
	}

	payload, ok := decoded(target)
	if !ok {
		b.skip(ctx, eventName, sub.HandlerType, reasonUndecodable, nil)
		return nil
	}

	if err := sub.Invoke(ctx, handler, payload); err != nil {
		return fmt.Errorf("handle %s with %s: %w", eventName, sub.HandlerType, err)
	}

	return nil
}

// decoded unwraps a **E decode target into *E and reports false when the
// payload decoded to nil. Other targets are returned as is.
func decoded(target any) (any, bool) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Pointer {
		return target, true
	}

	if rv.Elem().IsNil() {
		return nil, false
	}

	return rv.Elem().Interface(), true
}

func (b *Bus) skip(ctx context.Context, eventName, handlerType, reason string, err error) {
	b.metrics.skip(ctx, eventName, handlerType, reason)

	attrs := []any{"event", eventName, "handler", handlerType, "reason", reason}
	if err != nil {
		attrs = append(attrs, "err", err)
	}

	b.logger.DebugContext(ctx, "handler skipped", attrs...)
}

// Close releases the configuration. Afterwards event names pass through unchanged.
func (b *Bus) Close() error {
	b.cfg.Store(nil)
	return nil
}

type nopResolver struct{}

func (nopResolver) CreateScope(context.Context) cbus.Scope { return nopScope{} } //nolint:ireturn

type nopScope struct{}

func (nopScope) Resolve(string) (any, bool) { return nil, false }
func (nopScope) Close() error               { return nil }
