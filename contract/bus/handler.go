package bus

import "context"

// IntegrationEventHandler handles integration events of type E.
// A dispatch waits for Handle to return before the next handler runs.
type IntegrationEventHandler[E IntegrationEvent] interface {
	Handle(ctx context.Context, e E) error
}
