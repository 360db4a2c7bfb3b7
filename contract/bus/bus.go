package bus

import "context"

// EventBus is the contract every broker binding satisfies.
//
// Publish serializes the event and hands it to the broker; delivery guarantees are
// the broker's concern. Subscribe records the pairing in the subscription registry
// and binds broker resources once per canonical event name, however many handler
// types share it. Unsubscribe removes the pairing and releases the broker binding
// when the last handler of that canonical name goes away.
//
// Typed helpers (Subscribe[E, H], Unsubscribe[E, H]) live in the eventbus package.
type EventBus interface {
	Publish(ctx context.Context, e IntegrationEvent) error
	Subscribe(ctx context.Context, sub Subscription) error
	Unsubscribe(ctx context.Context, sub Subscription) error

	// Lifecycle
	Close() error
}
