/*
Package resolver provides a small dependency container that creates handler instances
inside explicit, per-dispatch resolution scopes.
*/
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// Lifetime controls how long a resolved instance lives.
type Lifetime int

const (
	// Transient instances are created on every Resolve.
	Transient Lifetime = iota
	// Scoped instances are created once per scope and released with it.
	Scoped
	// Singleton instances are created once per container and never released by a scope.
	Singleton
)

// Factory builds a handler instance.
type Factory func(ctx context.Context) (any, error)

// Container holds handler registrations. It is safe for concurrent use.
type Container struct {
	mu   sync.RWMutex
	regs map[string]*registration

	logger *slog.Logger
}

type registration struct {
	lifetime Lifetime
	factory  Factory

	once     sync.Once
	instance any
	err      error
}

var _ cbus.Resolver = (*Container)(nil)

// New constructs an empty Container. A nil logger discards output.
func New(logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Container{
		regs:   make(map[string]*registration),
		logger: logger,
	}
}

// Register binds a factory to a handler type identifier, replacing any previous binding.
func (c *Container) Register(handlerType string, lifetime Lifetime, factory Factory) error {
	if handlerType == "" || factory == nil {
		return errors.New("resolver: handler type and factory are required")
	}

	c.mu.Lock()
	c.regs[handlerType] = &registration{lifetime: lifetime, factory: factory}
	c.mu.Unlock()

	return nil
}

// Provide registers a typed factory under cbus.TypeID[H]().
func Provide[H any](c *Container, lifetime Lifetime, factory func(ctx context.Context) (H, error)) error {
	if factory == nil {
		return fmt.Errorf("resolver: nil factory for %s", cbus.TypeID[H]())
	}

	return c.Register(cbus.TypeID[H](), lifetime, func(ctx context.Context) (any, error) {
		return factory(ctx)
	})
}

// CreateScope opens a resolution scope bound to ctx.
func (c *Container) CreateScope(ctx context.Context) cbus.Scope { //nolint:ireturn
	return &Scope{
		ctx:       ctx,
		container: c,
		scoped:    make(map[string]any),
	}
}

func (c *Container) lookup(handlerType string) (*registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.regs[handlerType]

	return r, ok
}

// Scope resolves instances for a single dispatch.
type Scope struct {
	mu        sync.Mutex
	ctx       context.Context
	container *Container
	scoped    map[string]any
	owned     []any
	closed    bool
}

var _ cbus.Scope = (*Scope)(nil)

// Resolve returns an instance for handlerType, or false when none can be produced.
func (s *Scope) Resolve(handlerType string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	reg, ok := s.container.lookup(handlerType)
	if !ok {
		return nil, false
	}

	switch reg.lifetime {
	case Singleton:
		reg.once.Do(func() { reg.instance, reg.err = reg.factory(s.ctx) })
		if reg.err != nil {
			s.container.logger.WarnContext(s.ctx, "resolve singleton failed", "handler", handlerType, "err", reg.err)
			return nil, false
		}

		return reg.instance, reg.instance != nil
	case Scoped:
		if v, ok := s.scoped[handlerType]; ok {
			return v, true
		}
	}

	v, err := reg.factory(s.ctx)
	if err != nil {
		s.container.logger.WarnContext(s.ctx, "resolve failed", "handler", handlerType, "err", err)
		return nil, false
	}

	if v == nil {
		return nil, false
	}

	if reg.lifetime == Scoped {
		s.scoped[handlerType] = v
	}

	s.owned = append(s.owned, v)

	return v, true
}

// Close releases every instance the scope created, in reverse creation order.
// Instances implementing io.Closer are closed; errors are joined. Close is idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	owned := s.owned
	s.owned = nil
	s.scoped = nil
	s.mu.Unlock()

	var errs []error

	for i := len(owned) - 1; i >= 0; i-- {
		if c, ok := owned[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
