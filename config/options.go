package config

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/unkn0wn-root/memlock"
	"github.com/unkn0wn-root/memlock/store"
	"github.com/unkn0wn-root/memlock/store/local"
	rstore "github.com/unkn0wn-root/memlock/store/redis"
)

// ToOptions builds service options for the configured backend.
func (c *Config) ToOptions(log memlock.Logger, hooks memlock.Hooks) memlock.Options {
	opts := memlock.Options{
		Servers:        c.Servers.Specs(),
		Debug:          c.Debug,
		MaxKeyLength:   c.MaxKeyLength,
		MaxValueLength: c.MaxValueLength,
		DeadRetry:      c.DeadRetry.Duration(),
		CheckKeys:      c.CheckKeys,
		Timeout:        c.Timeout.Duration(),
		Namespace:      c.Namespace,
		Logger:         log,
		Hooks:          hooks,
	}
	switch c.Backend {
	case BackendRedis:
		opts.Servers = nil
		opts.Dial = c.dialRedis
	case BackendLocal:
		opts.Servers = nil
		opts.Dial = c.dialLocal
	}
	return opts
}

func (c *Config) dialRedis(_ context.Context, _ []memlock.Server, o memlock.DialOptions) (store.Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		DialTimeout:  o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	})
	return rstore.New(rstore.Config{Client: rdb, Name: c.Redis.Addr, CloseClient: true})
}

func (c *Config) dialLocal(context.Context, []memlock.Server, memlock.DialOptions) (store.Store, error) {
	return local.New(local.Config{
		MaxItemSize:   c.Local.MaxItemSize,
		SweepInterval: c.Local.SweepInterval.Duration(),
	}), nil
}
