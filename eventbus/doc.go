/*
Package eventbus provides the transport-agnostic core of the integration event bus:
event-name normalization, subscription bookkeeping for transports, and the dispatch
pipeline that turns an inbound (event name, payload) pair into handler invocations.
*/
package eventbus
