package bus

// SubscriptionManager holds canonical event names, their handlers and payload types.
// Implementations must be safe for concurrent use and must never expose a
// partially applied registration to readers.
type SubscriptionManager interface {
	IsEmpty() bool

	AddSubscription(sub Subscription) error
	RemoveSubscription(sub Subscription) error

	HasSubscriptionsForEvent(eventName string) bool
	// GetHandlersForEvent returns the handlers in registration order.
	GetHandlersForEvent(eventName string) []SubscriptionInfo
	// GetEventTypeByName looks up a payload type by its full event name.
	GetEventTypeByName(fullName string) (EventType, bool)
	GetEventKey(eventName string) string

	Clear()

	// OnEventRemoved registers a callback fired when the last handler of a
	// canonical event name is removed.
	OnEventRemoved(fn func(eventName string))
}
