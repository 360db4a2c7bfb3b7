package eventbus

// Config holds the naming policy and consumer identity of a bus instance.
// It is read-only after construction.
type Config struct {
	// SubscriberClientAppName identifies the consuming application; it prefixes subscriber names.
	SubscriberClientAppName string `mapstructure:"subscriber_client_app_name" yaml:"subscriber_client_app_name"`
	// DefaultTopicName is the broker-level exchange/topic shared by all events.
	DefaultTopicName     string `mapstructure:"default_topic_name"     yaml:"default_topic_name"`
	ConnectionRetryCount int    `mapstructure:"connection_retry_count" yaml:"connection_retry_count"`

	// EventNamePrefix and EventNameSuffix are character sets, not literal affixes:
	// stripping removes any leading (trailing) run made only of their characters.
	EventNamePrefix   string `mapstructure:"event_name_prefix"   yaml:"event_name_prefix"`
	EventNameSuffix   string `mapstructure:"event_name_suffix"   yaml:"event_name_suffix"`
	DeleteEventPrefix bool   `mapstructure:"delete_event_prefix" yaml:"delete_event_prefix"`
	DeleteEventSuffix bool   `mapstructure:"delete_event_suffix" yaml:"delete_event_suffix"`

	// IsolateHandlerFailures keeps dispatching to later handlers after one fails.
	IsolateHandlerFailures bool `mapstructure:"isolate_handler_failures" yaml:"isolate_handler_failures"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultTopicName:     "EventBus",
		ConnectionRetryCount: 5,
		EventNameSuffix:      "IntegrationEvent",
		DeleteEventSuffix:    true,
	}
}
