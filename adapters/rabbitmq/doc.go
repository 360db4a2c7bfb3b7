/*
Package rabbitmq provides a RabbitMQ transport for the event bus.
Events are published to a direct exchange named after the bus topic with the canonical
event name as routing key; each subscriber name owns a durable queue bound per event.
Connection dialing is retried with exponential backoff, and trace context can be
carried in headers via a bus.HeaderPropagator.
*/
package rabbitmq
