package errors

// Error codes for the event bus contracts. Keep stable; used across transports and the bus.
const (
	ErrCodeSubscriptionExists  = "eventbus.subscription_exists"
	ErrCodeHandlerTypeMismatch = "eventbus.handler_type_mismatch"
	ErrCodePublishFailed       = "eventbus.publish_failed"
	ErrCodeSubscribeFailed     = "eventbus.subscribe_failed"
	ErrCodeSerializationFailed = "eventbus.serialization_failed"
	ErrCodeTransportClosed     = "eventbus.transport_closed"
	ErrCodeInvalidConfig       = "eventbus.invalid_config"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrSubscriptionExists  = Code(ErrCodeSubscriptionExists)
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrTransportClosed     = Code(ErrCodeTransportClosed)
	ErrInvalidConfig       = Code(ErrCodeInvalidConfig)
)
