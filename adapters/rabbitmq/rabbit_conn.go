package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed constructor with a retrying dial.

const (
	defaultInitialBackoff = time.Second
	maxBackoff            = 30 * time.Second
)

type Config struct {
	URL            string        `mapstructure:"url"             yaml:"url"`
	ConnTimeout    time.Duration `mapstructure:"conn_timeout"    yaml:"conn_timeout"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
}

// NewWithAMQPConn dials RabbitMQ, retrying up to the bus connection retry count, opens a channel
// and returns a Transport together with a cleanup that closes transport, channel and connection.
func NewWithAMQPConn(ctx context.Context, cfg Config, b *eventbus.Bus) (*Transport, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrInvalidConfig)
	}

	dial := func() (*amqp.Connection, error) {
		return amqp.DialConfig(cfg.URL, amqp.Config{
			Locale:     "en_US",
			Properties: amqp.Table{"product": "scg-event-bus"},
			Dial:       amqp.DefaultDial(cfg.ConnTimeout),
		})
	}

	conn, err := retry(ctx, b.RetryCount(), cfg.InitialBackoff, func(attempt int, err error) {
		b.Logger().WarnContext(ctx, "rabbitmq dial failed", "attempt", attempt, "err", err)
	}, dial)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	tr := New(ch, b)
	cleanup := func() {
		_ = tr.Close()
		_ = ch.Close()
		_ = conn.Close()
	}

	return tr, cleanup, nil
}

// retry calls fn until it succeeds, retries are exhausted or ctx is done.
// Waits grow exponentially from initial with jitter, capped at maxBackoff.
func retry[T any](
	ctx context.Context,
	retries int,
	initial time.Duration,
	onFailure func(attempt int, err error),
	fn func() (T, error),
) (T, error) {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}

	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter
	backoff := initial

	var zero T

	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		if onFailure != nil {
			onFailure(attempt+1, err)
		}

		if attempt >= retries {
			return zero, err
		}

		sleep := backoff
		if half := int64(backoff / 2); half > 0 {
			sleep += time.Duration(rng.Int63n(half)) / 2
		}

		if sleep > maxBackoff {
			sleep = maxBackoff
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}
