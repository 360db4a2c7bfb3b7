package eventbus

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/next-trace/scg-event-bus/eventbus"

// skip reasons
const (
	reasonUnresolved  = "unresolved"
	reasonUntyped     = "untyped"
	reasonUndecodable = "undecodable"
)

type metrics struct {
	events   metric.Int64Counter
	skipped  metric.Int64Counter
	failures metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	meter := mp.Meter(meterName)

	// Instrument errors only occur for invalid names; fall back to no-op counters.
	events, _ := meter.Int64Counter("eventbus.dispatch.events",
		metric.WithDescription("Inbound events handed to the dispatch pipeline"),
		metric.WithUnit("{event}"),
	)
	skipped, _ := meter.Int64Counter("eventbus.dispatch.skipped",
		metric.WithDescription("Handlers skipped during dispatch"),
		metric.WithUnit("{handler}"),
	)
	failures, _ := meter.Int64Counter("eventbus.handler.failures",
		metric.WithDescription("Handler invocations that returned an error"),
		metric.WithUnit("{handler}"),
	)

	return metrics{events: events, skipped: skipped, failures: failures}
}

func (m metrics) event(ctx context.Context, eventName string, processed bool) {
	if m.events == nil {
		return
	}

	outcome := "processed"
	if !processed {
		outcome = "unsubscribed"
	}

	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.String("outcome", outcome),
	))
}

func (m metrics) skip(ctx context.Context, eventName, handlerType, reason string) {
	if m.skipped == nil {
		return
	}

	m.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.String("handler", handlerType),
		attribute.String("reason", reason),
	))
}

func (m metrics) failure(ctx context.Context, eventName, handlerType string) {
	if m.failures == nil {
		return
	}

	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.String("handler", handlerType),
	))
}
