package codec

import (
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements cbus.Serializer using MessagePack.
// It is more compact than JSON while staying schema-less.
type MsgPack struct{}

func (MsgPack) Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgPack) Deserialize(data []byte, target any) error {
	return msgpack.Unmarshal(data, target)
}

func (MsgPack) ContentType() string {
	return "application/msgpack"
}

var _ cbus.Serializer = MsgPack{}
