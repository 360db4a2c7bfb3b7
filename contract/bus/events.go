package bus

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event carries the metadata every integration event travels with.
// Embed it in concrete event types.
type Event struct {
	ID          uuid.UUID `json:"id"          msgpack:"id"`
	CreatedDate time.Time `json:"createdDate" msgpack:"createdDate"`
}

// NewEvent returns Event metadata with a fresh identifier and the current UTC time.
func NewEvent() Event {
	return Event{ID: uuid.New(), CreatedDate: time.Now().UTC()}
}

// EventMeta returns the event metadata. Promoted to any type embedding Event.
func (e Event) EventMeta() Event { return e }

// IntegrationEvent represents events exchanged with other processes through a broker.
type IntegrationEvent interface {
	EventMeta() Event
}

// Named lets an event type choose its wire name instead of its Go type name.
type Named interface {
	EventName() string
}

// EventName returns the raw (wire) name of an event value.
func EventName(e IntegrationEvent) string {
	if n, ok := e.(Named); ok {
		return n.EventName()
	}

	return typeName(e)
}

// EventNameOf returns the raw name of event type E.
func EventNameOf[E IntegrationEvent]() string {
	t := reflect.TypeFor[E]()

	v := reflect.Zero(t)
	if t.Kind() == reflect.Ptr {
		v = reflect.New(t.Elem())
	}

	if n, ok := v.Interface().(Named); ok {
		return n.EventName()
	}

	return shortName(reflectType[E]())
}
