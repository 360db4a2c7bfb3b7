package bus

import "context"

// Invoker calls a resolved handler with a decoded payload.
// It is built at registration time, where both concrete types are known.
type Invoker func(ctx context.Context, handler any, payload any) error

// SubscriptionInfo describes one registered handler of a canonical event name.
type SubscriptionInfo struct {
	// HandlerType identifies the handler for the resolver.
	HandlerType string
	Invoke      Invoker
}

// EventType binds a full event name to its payload type.
// New returns a decode target. A target of type **E lets a null payload
// decode to nil, which dispatch treats as nothing to handle.
type EventType struct {
	Name string
	New  func() any
}

// Subscription pairs an event type with one handler.
type Subscription struct {
	EventType EventType
	Info      SubscriptionInfo
}
