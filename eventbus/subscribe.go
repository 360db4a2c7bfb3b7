package eventbus

import (
	"context"
	"fmt"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// SubscriptionOf describes the pairing of event type E with handler type H.
// The handler is resolved at dispatch time under cbus.TypeID[H]().
func SubscriptionOf[E cbus.IntegrationEvent, H cbus.IntegrationEventHandler[E]]() cbus.Subscription {
	return cbus.Subscription{
		EventType: cbus.EventType{
			Name: cbus.EventNameOf[E](),
			New:  func() any { return new(*E) },
		},
		Info: cbus.SubscriptionInfo{
			HandlerType: cbus.TypeID[H](),
			Invoke:      invoker[E](),
		},
	}
}

// Subscribe binds handler type H to event type E on eb.
func Subscribe[E cbus.IntegrationEvent, H cbus.IntegrationEventHandler[E]](ctx context.Context, eb cbus.EventBus) error {
	return eb.Subscribe(ctx, SubscriptionOf[E, H]())
}

// Unsubscribe removes the binding of handler type H to event type E from eb.
func Unsubscribe[E cbus.IntegrationEvent, H cbus.IntegrationEventHandler[E]](ctx context.Context, eb cbus.EventBus) error {
	return eb.Unsubscribe(ctx, SubscriptionOf[E, H]())
}

func invoker[E cbus.IntegrationEvent]() cbus.Invoker {
	return func(ctx context.Context, handler, payload any) error {
		h, ok := handler.(cbus.IntegrationEventHandler[E])
		if !ok {
			return fmt.Errorf("invoke %T: %w", handler, berr.ErrHandlerTypeMismatch)
		}

		e, ok := payload.(*E)
		if !ok {
			return fmt.Errorf("invoke %T with %T: %w", handler, payload, berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, *e)
	}
}
