package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructor with writer and consumer wrappers.

type Config struct {
	Brokers     []string             `mapstructure:"brokers"    yaml:"brokers"`
	ClientID    string               `mapstructure:"client_id"  yaml:"client_id"`
	Idempotent  bool                 `mapstructure:"idempotent" yaml:"idempotent"`
	TLS         *tls.Config          `mapstructure:"-"          yaml:"-"`
	Acks        kgo.Acks             `mapstructure:"-"          yaml:"-"`
	Compression kgo.CompressionCodec `mapstructure:"-"          yaml:"-"`
}

func (cfg Config) opts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...), kgo.AllowAutoTopicCreation()}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	return opts
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

type kgoConsumer struct{ cl *kgo.Client }

func (c kgoConsumer) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, berr.ErrTransportClosed
	}

	var errs []error
	for _, fe := range fetches.Errors() {
		errs = append(errs, fmt.Errorf("%s[%d]: %w", fe.Topic, fe.Partition, fe.Err))
	}

	var recs []Record

	fetches.EachRecord(func(r *kgo.Record) {
		h := make(map[string]string, len(r.Headers))
		for _, rh := range r.Headers {
			h[rh.Key] = string(rh.Value)
		}

		recs = append(recs, Record{Topic: r.Topic, Key: r.Key, Value: r.Value, Headers: h})
	})

	return recs, errors.Join(errs...)
}

func (c kgoConsumer) Close() { c.cl.Close() }

// NewWithKgo builds a franz-go backed Transport. Each subscribed event gets its own group consumer
// client; the returned cleanup closes the transport and the producer client.
func NewWithKgo(cfg Config, b *eventbus.Bus) (*Transport, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrInvalidConfig)
	}

	popts := cfg.opts()
	if cfg.Idempotent {
		if cfg.Compression != (kgo.CompressionCodec{}) {
			popts = append(popts, kgo.ProducerBatchCompression(cfg.Compression))
		}
	} else {
		popts = append(popts, kgo.DisableIdempotentWrite())
	}

	if cfg.Acks != (kgo.Acks{}) {
		popts = append(popts, kgo.RequiredAcks(cfg.Acks))
	}

	cl, err := kgo.NewClient(popts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrPublishFailed, err)
	}

	consumers := func(topic, group string) (Consumer, error) {
		ccl, err := kgo.NewClient(append(cfg.opts(), kgo.ConsumerGroup(group), kgo.ConsumeTopics(topic))...)
		if err != nil {
			return nil, err
		}

		return kgoConsumer{cl: ccl}, nil
	}

	tr := New(kgoWriter{cl: cl}, consumers, b)
	cleanup := func() {
		_ = tr.Close()
		cl.Close()
	}

	return tr, cleanup, nil
}
