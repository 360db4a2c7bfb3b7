package memory

import (
	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/next-trace/scg-event-bus/eventbus"
)

// New constructs an event bus backed by the in-memory transport with the default
// configuration and returns it as a cbus.EventBus along with a cleanup function that closes it.
func New(r cbus.Resolver, opts ...eventbus.Option) (cbus.EventBus, func()) { //nolint:ireturn
	return NewWithConfig(eventbus.DefaultConfig(), r, opts...)
}

// NewWithConfig is New with an explicit configuration.
func NewWithConfig(cfg eventbus.Config, r cbus.Resolver, opts ...eventbus.Option) (cbus.EventBus, func()) { //nolint:ireturn
	tr := inmemory.New(eventbus.New(cfg, r, opts...))
	cleanup := func() { _ = tr.Close() }

	return tr, cleanup
}
