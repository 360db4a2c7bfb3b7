package bus

import "context"

// Resolver creates resolution scopes for handler instances.
type Resolver interface {
	CreateScope(ctx context.Context) Scope
}

// Scope resolves handler instances for one dispatch.
// Close ends the scope lifetime and must be called on every exit path.
type Scope interface {
	Resolve(handlerType string) (any, bool)
	Close() error
}
