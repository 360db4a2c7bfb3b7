package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/next-trace/scg-event-bus/config"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if diff := cmp.Diff(eventbus.DefaultConfig(), cfg.EventBus); diff != "" {
		t.Fatalf("eventbus defaults (-want +got):\n%s", diff)
	}

	if cfg.Transport != config.TransportInMemory || cfg.Codec != "json" {
		t.Fatalf("transport/codec: %s %s", cfg.Transport, cfg.Codec)
	}

	if cfg.RabbitMQ.ConnTimeout != 10*time.Second || cfg.NATS.MaxReconnects != 60 {
		t.Fatalf("broker defaults: %+v %+v", cfg.RabbitMQ, cfg.NATS)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "eventbus.yaml")
	yaml := `
eventbus:
  subscriber_client_app_name: Billing
  event_name_prefix: Int
  delete_event_prefix: true
transport: kafka
codec: msgpack
kafka:
  brokers: ["k1:9092"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("EVENTBUS_EVENTBUS_DEFAULT_TOPIC_NAME", "Orders")
	t.Setenv("EVENTBUS_EVENTBUS_ISOLATE_HANDLER_FAILURES", "true")
	t.Setenv("EVENTBUS_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := eventbus.DefaultConfig()
	want.SubscriberClientAppName = "Billing"
	want.DefaultTopicName = "Orders"
	want.EventNamePrefix = "Int"
	want.DeleteEventPrefix = true
	want.IsolateHandlerFailures = true

	if diff := cmp.Diff(want, cfg.EventBus); diff != "" {
		t.Fatalf("eventbus (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"a:9092", "b:9092"}, cfg.Kafka.Brokers); diff != "" {
		t.Fatalf("brokers (-want +got):\n%s", diff)
	}

	if cfg.Codec != "msgpack" {
		t.Fatalf("codec: %s", cfg.Codec)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("EVENTBUS_TRANSPORT=redis\nEVENTBUS_REDIS_ADDRS=localhost:6379\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	// godotenv sets process variables; register them so the test restores them.
	t.Setenv("EVENTBUS_TRANSPORT", "")
	t.Setenv("EVENTBUS_REDIS_ADDRS", "")
	os.Unsetenv("EVENTBUS_TRANSPORT")
	os.Unsetenv("EVENTBUS_REDIS_ADDRS")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Transport != config.TransportRedis || len(cfg.Redis.Addrs) != 1 {
		t.Fatalf("got %s %v", cfg.Transport, cfg.Redis.Addrs)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	cases := map[string]map[string]string{
		"unknown transport":  {"EVENTBUS_TRANSPORT": "smoke-signals"},
		"unknown codec":      {"EVENTBUS_CODEC": "xml"},
		"rabbit without url": {"EVENTBUS_TRANSPORT": "rabbitmq"},
		"nats without url":   {"EVENTBUS_TRANSPORT": "nats"},
		"kafka no brokers":   {"EVENTBUS_TRANSPORT": "kafka"},
		"negative retries":   {"EVENTBUS_EVENTBUS_CONNECTION_RETRY_COUNT": "-1"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}

			if _, err := config.Load(""); !errors.Is(err, berr.ErrInvalidConfig) {
				t.Fatalf("want ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := config.NewLogger("debug", "json"); err != nil {
		t.Fatalf("json: %v", err)
	}

	if _, err := config.NewLogger("warn", ""); err != nil {
		t.Fatalf("text: %v", err)
	}

	if _, err := config.NewLogger("loud", "text"); !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("bad level: %v", err)
	}

	if _, err := config.NewLogger("info", "xml"); !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("bad format: %v", err)
	}
}
