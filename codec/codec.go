// Package codec provides event serializers for the bus and its transports.
//
// Supported formats:
//   - JSON (default, human-readable)
//   - MessagePack (binary, compact)
package codec

import (
	"fmt"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Default returns the default serializer (JSON).
func Default() cbus.Serializer { //nolint:ireturn
	return JSON{}
}

// ByName returns the serializer registered under name ("json" or "msgpack").
func ByName(name string) (cbus.Serializer, error) { //nolint:ireturn
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("codec %q: %w", name, berr.ErrInvalidConfig)
	}
}
