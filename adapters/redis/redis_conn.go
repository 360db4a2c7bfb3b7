package redis

import (
	"context"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/eventbus"
	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Addrs    []string `mapstructure:"addrs"    yaml:"addrs"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db"       yaml:"db"`
}

// NewWithRedis creates a universal client, pings it and returns a Transport with a cleanup
// that closes the transport and the client.
func NewWithRedis(ctx context.Context, cfg Config, b *eventbus.Bus) (*Transport, func(), error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, fmt.Errorf("%w: redis addrs required", berr.ErrInvalidConfig)
	}

	rc := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis connect: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	tr := New(rc, b)
	cleanup := func() {
		_ = tr.Close()
		_ = rc.Close()
	}

	return tr, cleanup, nil
}
