// Package propagation bridges OpenTelemetry context propagation to message headers.
package propagation

import (
	"context"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// OTel implements cbus.HeaderPropagator with an OpenTelemetry TextMapPropagator.
type OTel struct {
	Propagator propagation.TextMapPropagator
}

var _ cbus.HeaderPropagator = OTel{}

// New returns an OTel propagator using W3C trace context and baggage.
func New() OTel {
	return OTel{Propagator: propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)}
}

// Global returns an OTel propagator bound to the globally registered propagator.
func Global() OTel {
	return OTel{Propagator: otel.GetTextMapPropagator()}
}

func (p OTel) Inject(ctx context.Context, headers map[string]string) {
	if p.Propagator == nil || headers == nil {
		return
	}

	p.Propagator.Inject(ctx, propagation.MapCarrier(headers))
}

func (p OTel) Extract(ctx context.Context, headers map[string]string) context.Context {
	if p.Propagator == nil || len(headers) == 0 {
		return ctx
	}

	return p.Propagator.Extract(ctx, propagation.MapCarrier(headers))
}
