// Package redis adapts a go-redis UniversalClient to store.Store, so memlock
// locks can run on a Redis deployment. Add maps to SET NX and stats reports
// map to INFO sections.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/memlock/store"
)

// ErrNilClient is returned by New when Config.Client is nil.
var ErrNilClient = store.ErrNilClient

// infoSections maps memcached report names onto INFO sections.
// Reports without a Redis counterpart fall back to the general INFO.
var infoSections = map[string]string{
	"":         "",
	"settings": "server",
	"items":    "keyspace",
	"slabs":    "memory",
	"conns":    "clients",
}

type Redis struct {
	rdb         goredis.UniversalClient
	name        string
	closeClient bool
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	// Name labels the single Stats entry, typically the configured address.
	Name        string
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	name := cfg.Name
	if name == "" {
		name = "redis"
	}
	return &Redis{rdb: cfg.Client, name: name, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, key, value, clampTTL(ttl)).Err()
}

func (p *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.rdb.SetNX(ctx, key, value, clampTTL(ttl)).Result()
}

func (p *Redis) Delete(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

func (p *Redis) FlushAll(ctx context.Context) error {
	return p.rdb.FlushAll(ctx).Err()
}

// Stats returns one entry for the client. An unreachable server yields an
// empty result rather than an error.
func (p *Redis) Stats(ctx context.Context, report string) ([]store.ServerStats, error) {
	section := infoSections[report]
	var cmd *goredis.StringCmd
	if section == "" {
		cmd = p.rdb.Info(ctx)
	} else {
		cmd = p.rdb.Info(ctx, section)
	}
	raw, err := cmd.Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []store.ServerStats{}, nil
	}
	return []store.ServerStats{{Server: p.name, Stats: ParseInfo(raw)}}, nil
}

// Close releases the underlying client only when this store owns it.
// Safe to call multiple times.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// ParseInfo turns an INFO reply into a flat map. Section headers and blank
// lines are skipped.
func ParseInfo(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0 // no expiry
	}
	return ttl
}
