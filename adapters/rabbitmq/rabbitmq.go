package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "direct"

// Channel is the subset of *amqp.Channel the transport uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ Channel = (*amqp.Channel)(nil)

// Transport implements cbus.EventBus over an AMQP channel.
type Transport struct {
	Channel    Channel
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers

	bus *eventbus.Bus

	mu        sync.Mutex
	declared  bool
	consumers map[string]string // canonical event name -> consumer tag
	closed    bool
	wg        sync.WaitGroup
}

var _ cbus.EventBus = (*Transport)(nil)

func New(ch Channel, b *eventbus.Bus) *Transport {
	return NewWithPropagator(ch, b, cbus.NopHeaderPropagator{})
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(ch Channel, b *eventbus.Bus, hp cbus.HeaderPropagator) *Transport {
	if hp == nil {
		hp = cbus.NopHeaderPropagator{}
	}

	return &Transport{Channel: ch, Propagator: hp, bus: b, consumers: make(map[string]string)}
}

func (t *Transport) Publish(ctx context.Context, e cbus.IntegrationEvent) error {
	if err := t.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	name, body, err := t.bus.Encode(e)
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	if err := t.ensureExchange(); err != nil {
		return fmt.Errorf("rabbitmq publish declare: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	hdrs := make(map[string]string, 2)
	t.Propagator.Inject(ctx, hdrs)

	meta := e.EventMeta()
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  t.bus.Serializer().ContentType(),
		MessageId:    meta.ID.String(),
		Timestamp:    meta.CreatedDate,
		Type:         cbus.EventName(e),
		Headers:      toTable(hdrs),
		Body:         body,
	}

	if err := t.Channel.PublishWithContext(ctx, t.bus.TopicName(), name, false, false, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := t.ready(ctx, berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	first, err := t.bus.AddSubscription(sub)
	if err != nil || !first {
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)
	queue := t.bus.SubscriberName(sub.EventType.Name)

	deliveries, err := t.bind(name, queue)
	if err != nil {
		_, _ = t.bus.RemoveSubscription(sub)
		return fmt.Errorf("rabbitmq subscribe %s: %w", name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	t.consumers[name] = queue

	t.wg.Add(1)

	go t.consume(deliveries)

	return nil
}

// bind declares the subscriber queue, binds it to the exchange and starts a consumer.
// Callers hold t.mu.
func (t *Transport) bind(name, queue string) (<-chan amqp.Delivery, error) {
	if err := t.declareExchangeLocked(); err != nil {
		return nil, err
	}

	if _, err := t.Channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}

	if err := t.Channel.QueueBind(queue, name, t.bus.TopicName(), false, nil); err != nil {
		return nil, err
	}

	return t.Channel.Consume(queue, queue, false, false, false, false, nil)
}

func (t *Transport) Unsubscribe(ctx context.Context, sub cbus.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, err := t.bus.RemoveSubscription(sub)
	if err != nil || !last {
		return err
	}

	name := t.bus.ProcessEventName(sub.EventType.Name)

	tag, ok := t.consumers[name]
	if !ok {
		return nil
	}

	delete(t.consumers, name)

	return errors.Join(
		t.Channel.Cancel(tag, false),
		t.Channel.QueueUnbind(tag, name, t.bus.TopicName(), nil),
	)
}

// Close cancels every consumer, waits for in-flight deliveries, clears the registry
// and releases the bus configuration. The channel itself belongs to the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	consumers := t.consumers
	t.consumers = make(map[string]string)
	t.mu.Unlock()

	var errs []error

	for _, tag := range consumers {
		if err := t.Channel.Cancel(tag, false); err != nil {
			errs = append(errs, err)
		}
	}

	t.wg.Wait()

	t.bus.Subscriptions().Clear()
	errs = append(errs, t.bus.Close())

	return errors.Join(errs...)
}

// consume dispatches deliveries until the consumer is cancelled.
// Deliveries are acked after processing whatever the outcome; redelivery policy
// belongs to the broker configuration.
func (t *Transport) consume(deliveries <-chan amqp.Delivery) {
	defer t.wg.Done()

	for d := range deliveries {
		ctx := t.Propagator.Extract(context.Background(), fromTable(d.Headers))

		if _, err := t.bus.ProcessEvent(ctx, d.RoutingKey, d.Body); err != nil {
			t.bus.Logger().ErrorContext(ctx, "rabbitmq dispatch failed", "event", d.RoutingKey, "err", err)
		}

		if err := d.Ack(false); err != nil {
			t.bus.Logger().WarnContext(ctx, "rabbitmq ack failed", "event", d.RoutingKey, "err", err)
		}
	}
}

func (t *Transport) ensureExchange() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.declareExchangeLocked()
}

func (t *Transport) declareExchangeLocked() error {
	if t.declared {
		return nil
	}

	if err := t.Channel.ExchangeDeclare(t.bus.TopicName(), exchangeKind, true, false, false, false, nil); err != nil {
		return err
	}

	t.declared = true

	return nil
}

func (t *Transport) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Channel == nil || t.bus == nil {
		return fmt.Errorf("rabbitmq %s: %w", label, base)
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return fmt.Errorf("rabbitmq %s: %w", label, berr.ErrTransportClosed)
	}

	return nil
}

func toTable(h map[string]string) amqp.Table {
	if len(h) == 0 {
		return nil
	}

	t := amqp.Table{}
	for k, v := range h {
		t[k] = v
	}

	return t
}

func fromTable(t amqp.Table) map[string]string {
	h := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			h[k] = s
		}
	}

	return h
}
