// Package config loads process configuration for an event bus deployment from an
// optional YAML file, a .env file and EVENTBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/next-trace/scg-event-bus/adapters/kafka"
	"github.com/next-trace/scg-event-bus/adapters/nats"
	"github.com/next-trace/scg-event-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-event-bus/adapters/redis"
	"github.com/next-trace/scg-event-bus/codec"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/spf13/viper"
)

const envPrefix = "EVENTBUS"

// Transport names accepted in the transport key.
const (
	TransportInMemory = "inmemory"
	TransportRabbitMQ = "rabbitmq"
	TransportNATS     = "nats"
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
)

var transports = []string{TransportInMemory, TransportRabbitMQ, TransportNATS, TransportKafka, TransportRedis}

type Log struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the full process configuration.
type Config struct {
	EventBus  eventbus.Config `mapstructure:"eventbus"  yaml:"eventbus"`
	Transport string          `mapstructure:"transport" yaml:"transport"`
	Codec     string          `mapstructure:"codec"     yaml:"codec"`
	Log       Log             `mapstructure:"log"       yaml:"log"`

	RabbitMQ rabbitmq.Config `mapstructure:"rabbitmq" yaml:"rabbitmq"`
	NATS     nats.Config     `mapstructure:"nats"     yaml:"nats"`
	Kafka    kafka.Config    `mapstructure:"kafka"    yaml:"kafka"`
	Redis    redis.Config    `mapstructure:"redis"    yaml:"redis"`
}

// Load reads .env (a missing file is fine), then the YAML file at path when non-empty,
// then EVENTBUS_* environment variables, where EVENTBUS_EVENTBUS_DEFAULT_TOPIC_NAME
// overrides eventbus.default_topic_name. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, errors.Join(berr.ErrInvalidConfig, err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// every key needs a default for AutomaticEnv to reach it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := eventbus.DefaultConfig()

	v.SetDefault("eventbus.subscriber_client_app_name", d.SubscriberClientAppName)
	v.SetDefault("eventbus.default_topic_name", d.DefaultTopicName)
	v.SetDefault("eventbus.connection_retry_count", d.ConnectionRetryCount)
	v.SetDefault("eventbus.event_name_prefix", d.EventNamePrefix)
	v.SetDefault("eventbus.event_name_suffix", d.EventNameSuffix)
	v.SetDefault("eventbus.delete_event_prefix", d.DeleteEventPrefix)
	v.SetDefault("eventbus.delete_event_suffix", d.DeleteEventSuffix)
	v.SetDefault("eventbus.isolate_handler_failures", d.IsolateHandlerFailures)

	v.SetDefault("transport", TransportInMemory)
	v.SetDefault("codec", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.conn_timeout", "10s")
	v.SetDefault("rabbitmq.initial_backoff", "1s")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "")
	v.SetDefault("nats.conn_timeout", "5s")
	v.SetDefault("nats.max_reconnects", 60)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "")
	v.SetDefault("kafka.idempotent", false)

	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Validate reports the first configuration problem found, wrapped with berr.ErrInvalidConfig.
func (c *Config) Validate() error {
	if !slices.Contains(transports, c.Transport) {
		return fmt.Errorf("%w: unknown transport %q", berr.ErrInvalidConfig, c.Transport)
	}

	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}

	if c.EventBus.ConnectionRetryCount < 0 {
		return fmt.Errorf("%w: connection_retry_count must not be negative", berr.ErrInvalidConfig)
	}

	switch c.Transport {
	case TransportRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("%w: rabbitmq.url required", berr.ErrInvalidConfig)
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats.url required", berr.ErrInvalidConfig)
		}
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka.brokers required", berr.ErrInvalidConfig)
		}
	case TransportRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("%w: redis.addrs required", berr.ErrInvalidConfig)
		}
	}

	return nil
}

// NewLogger builds a slog logger writing text or JSON to stderr.
func NewLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: log level %q", berr.ErrInvalidConfig, level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q", berr.ErrInvalidConfig, format)
	}
}
