package bus

// Serializer converts events to and from their wire representation.
// Implementations must be safe for concurrent use.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	// Deserialize decodes data into target, which must be a pointer.
	Deserialize(data []byte, target any) error
	ContentType() string
}
