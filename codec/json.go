package codec

import (
	"encoding/json"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// JSON implements cbus.Serializer using encoding/json.
type JSON struct{}

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, target any) error {
	return json.Unmarshal(data, target)
}

func (JSON) ContentType() string {
	return "application/json"
}

var _ cbus.Serializer = JSON{}
