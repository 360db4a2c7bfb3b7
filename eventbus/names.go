package eventbus

import "strings"

// ProcessEventName returns the canonical form of a raw event name.
// Prefix and suffix stripping trim character classes, so the result is idempotent.
// After Close the name is returned unchanged.
func (b *Bus) ProcessEventName(eventName string) string {
	cfg := b.cfg.Load()
	if cfg == nil {
		return eventName
	}

	if cfg.DeleteEventPrefix {
		eventName = strings.TrimLeft(eventName, cfg.EventNamePrefix)
	}

	if cfg.DeleteEventSuffix {
		eventName = strings.TrimRight(eventName, cfg.EventNameSuffix)
	}

	return eventName
}

// SubscriberName returns "{SubscriberClientAppName}.{canonical name}".
// Transports use it for queue, consumer group and durable names.
func (b *Bus) SubscriberName(eventName string) string {
	var app string
	if cfg := b.cfg.Load(); cfg != nil {
		app = cfg.SubscriberClientAppName
	}

	return app + "." + b.ProcessEventName(eventName)
}

// FullEventName re-wraps a canonical name with the prefix and suffix that
// normalization strips, giving the name producers put on the wire.
// Only affixes whose delete flag is on are added back; an affix that is never
// stripped is never part of a registered type name.
func (b *Bus) FullEventName(eventName string) string {
	cfg := b.cfg.Load()
	if cfg == nil {
		return eventName
	}

	if cfg.DeleteEventPrefix {
		eventName = cfg.EventNamePrefix + eventName
	}

	if cfg.DeleteEventSuffix {
		eventName += cfg.EventNameSuffix
	}

	return eventName
}

// TopicName returns the configured broker-level topic, or "" after Close.
func (b *Bus) TopicName() string {
	if cfg := b.cfg.Load(); cfg != nil {
		return cfg.DefaultTopicName
	}

	return ""
}

// RetryCount returns the configured connection retry count, or 0 after Close.
func (b *Bus) RetryCount() int {
	if cfg := b.cfg.Load(); cfg != nil {
		return cfg.ConnectionRetryCount
	}

	return 0
}
