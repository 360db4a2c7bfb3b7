/*
Package subscriptions provides the in-memory subscription registry used by the event bus.
Handlers are keyed by canonical event name; payload types by full event name.
*/
package subscriptions

import (
	"fmt"
	"slices"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Manager is a concurrency-safe, in-memory cbus.SubscriptionManager.
// Readers always receive copies, so a lookup never observes a partial registration.
type Manager struct {
	mu sync.RWMutex

	handlers   map[string][]cbus.SubscriptionInfo
	eventTypes []cbus.EventType

	keyOf   func(eventName string) string
	removed []func(eventName string)
}

var _ cbus.SubscriptionManager = (*Manager)(nil)

// NewManager constructs a Manager that keys handlers with keyOf.
// A nil keyOf keeps event names as they are.
func NewManager(keyOf func(eventName string) string) *Manager {
	if keyOf == nil {
		keyOf = func(name string) string { return name }
	}

	return &Manager{
		handlers: make(map[string][]cbus.SubscriptionInfo),
		keyOf:    keyOf,
	}
}

func (m *Manager) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handlers) == 0
}

// AddSubscription registers sub. A handler type may be bound once per canonical name.
func (m *Manager) AddSubscription(sub cbus.Subscription) error {
	key := m.GetEventKey(sub.EventType.Name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.ContainsFunc(m.handlers[key], sameHandler(sub.Info.HandlerType)) {
		return fmt.Errorf("subscribe %s to %s: %w", sub.Info.HandlerType, key, berr.ErrSubscriptionExists)
	}

	m.handlers[key] = append(slices.Clip(m.handlers[key]), sub.Info)

	if !slices.ContainsFunc(m.eventTypes, sameType(sub.EventType.Name)) {
		m.eventTypes = append(m.eventTypes, sub.EventType)
	}

	return nil
}

// RemoveSubscription unregisters sub. Removing an unknown pairing is a no-op.
func (m *Manager) RemoveSubscription(sub cbus.Subscription) error {
	key := m.GetEventKey(sub.EventType.Name)

	m.mu.Lock()

	current := m.handlers[key]

	i := slices.IndexFunc(current, sameHandler(sub.Info.HandlerType))
	if i < 0 {
		m.mu.Unlock()
		return nil
	}

	remaining := slices.Delete(slices.Clone(current), i, i+1)
	if len(remaining) > 0 {
		m.handlers[key] = remaining
		m.mu.Unlock()

		return nil
	}

	delete(m.handlers, key)
	m.eventTypes = slices.DeleteFunc(slices.Clone(m.eventTypes), func(t cbus.EventType) bool {
		return m.keyOf(t.Name) == key
	})
	listeners := slices.Clone(m.removed)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(key)
	}

	return nil
}

func (m *Manager) HasSubscriptionsForEvent(eventName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handlers[eventName]) > 0
}

func (m *Manager) GetHandlersForEvent(eventName string) []cbus.SubscriptionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.handlers[eventName])
}

func (m *Manager) GetEventTypeByName(fullName string) (cbus.EventType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := slices.IndexFunc(m.eventTypes, sameType(fullName))
	if i < 0 {
		return cbus.EventType{}, false
	}

	return m.eventTypes[i], true
}

// GetEventKey returns the canonical key for a raw event name.
func (m *Manager) GetEventKey(eventName string) string {
	return m.keyOf(eventName)
}

// Clear drops every subscription without firing removal callbacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = make(map[string][]cbus.SubscriptionInfo)
	m.eventTypes = nil
}

func (m *Manager) OnEventRemoved(fn func(eventName string)) {
	if fn == nil {
		return
	}

	m.mu.Lock()
	m.removed = append(m.removed, fn)
	m.mu.Unlock()
}

func sameHandler(handlerType string) func(cbus.SubscriptionInfo) bool {
	return func(s cbus.SubscriptionInfo) bool { return s.HandlerType == handlerType }
}

func sameType(name string) func(cbus.EventType) bool {
	return func(t cbus.EventType) bool { return t.Name == name }
}
