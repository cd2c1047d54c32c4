// Package memcache adapts github.com/bradfitz/gomemcache to store.Store.
//
// Data verbs go through the driver. Stats reports are read over short-lived
// text protocol connections because the driver has no stats command.
package memcache

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/memlock/store"
)

var ErrNoServers = errors.New("memcache store: no servers configured")

// maxRelativeExpiration is the longest TTL memcached reads as relative seconds.
// Longer TTLs must be sent as an absolute unix time.
const maxRelativeExpiration = 30 * 24 * time.Hour

type Config struct {
	Servers      []store.Server
	Timeout      time.Duration // per network operation; 0 => driver default
	MaxIdleConns int           // per server; 0 => driver default
	DeadRetry    time.Duration // 0 disables dead-server tracking

	// OnServerError is called with the configured address of a server that
	// failed at the network level or was left out of a Stats answer.
	OnServerError func(server string, err error)
}

type Memcache struct {
	c       *gomemcache.Client
	sel     *selector
	timeout time.Duration
	onErr   func(string, error)
}

var _ store.Store = (*Memcache)(nil)

func New(cfg Config) (*Memcache, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}
	sel, err := newSelector(cfg.Servers, cfg.DeadRetry)
	if err != nil {
		return nil, err
	}
	c := gomemcache.NewFromSelector(sel)
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		c.MaxIdleConns = cfg.MaxIdleConns
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = gomemcache.DefaultTimeout
	}
	onErr := cfg.OnServerError
	if onErr == nil {
		onErr = func(string, error) {}
	}
	return &Memcache{c: c, sel: sel, timeout: timeout, onErr: onErr}, nil
}

func (m *Memcache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	it, err := m.c.Get(key)
	if errors.Is(err, gomemcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, m.fail(key, err)
	}
	return it.Value, true, nil
}

func (m *Memcache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.c.Set(&gomemcache.Item{Key: key, Value: value, Expiration: expiration(ttl)}); err != nil {
		return m.fail(key, err)
	}
	return nil
}

func (m *Memcache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := m.c.Add(&gomemcache.Item{Key: key, Value: value, Expiration: expiration(ttl)})
	if errors.Is(err, gomemcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, m.fail(key, err)
	}
	return true, nil
}

func (m *Memcache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.c.Delete(key)
	if err == nil || errors.Is(err, gomemcache.ErrCacheMiss) {
		return nil
	}
	return m.fail(key, err)
}

func (m *Memcache) FlushAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.c.FlushAll()
}

func (m *Memcache) Close(context.Context) error {
	return m.c.Close()
}

// fail marks the server owning key dead when err is a network failure.
func (m *Memcache) fail(key string, err error) error {
	if !isNetErr(err) {
		return err
	}
	if addr, perr := m.sel.PickServer(key); perr == nil {
		if server := m.sel.markDead(addr); server != "" {
			m.onErr(server, err)
		}
	}
	return err
}

func isNetErr(err error) bool {
	var ne net.Error
	var cte *gomemcache.ConnectTimeoutError
	return errors.As(err, &ne) || errors.As(err, &cte) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// expiration converts ttl to memcached's exptime: 0 = never, seconds rounded
// up, or an absolute unix time beyond 30 days. Absolute times past the int32
// range are clamped; a wrapped value would read as already expired.
func expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		return int32(min(time.Now().Add(ttl).Unix(), math.MaxInt32))
	}
	return int32((ttl + time.Second - 1) / time.Second)
}
