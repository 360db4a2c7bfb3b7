package eventbus

import (
	"log/slog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"go.opentelemetry.io/otel/metric"
)

// Option configures a Bus instance.
type Option func(*Bus)

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSerializer sets the payload serializer. Defaults to JSON.
func WithSerializer(s cbus.Serializer) Option {
	return func(b *Bus) {
		if s != nil {
			b.serializer = s
		}
	}
}

// WithSubscriptionManager replaces the in-memory registry.
// The manager must key handlers with the bus's ProcessEventName.
func WithSubscriptionManager(m cbus.SubscriptionManager) Option {
	return func(b *Bus) {
		if m != nil {
			b.subs = m
		}
	}
}

// WithIsolateHandlerFailures keeps dispatching after a handler fails and reports
// every failure together, overriding Config.IsolateHandlerFailures.
func WithIsolateHandlerFailures(isolate bool) Option {
	return func(b *Bus) { b.isolate = isolate }
}

// WithMeterProvider sets the OpenTelemetry meter provider used for dispatch metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *Bus) {
		if mp != nil {
			b.meterProvider = mp
		}
	}
}
