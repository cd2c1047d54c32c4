package memlock

import (
	"context"
	"time"

	"github.com/unkn0wn-root/memlock/store"
	mc "github.com/unkn0wn-root/memlock/store/memcache"
)

// DialOptions is what a DialFunc needs besides the server list.
type DialOptions struct {
	Debug     bool
	Timeout   time.Duration
	DeadRetry time.Duration
	// OnServerError must be passed to the backend so unreachable servers are
	// logged and counted.
	OnServerError func(server string, err error)
}

// DialFunc opens a store.Store over the resolved servers.
type DialFunc func(ctx context.Context, servers []Server, opts DialOptions) (store.Store, error)

// DialMemcache is the default DialFunc.
func DialMemcache(_ context.Context, servers []Server, opts DialOptions) (store.Store, error) {
	return mc.New(mc.Config{
		Servers:       servers,
		Timeout:       opts.Timeout,
		DeadRetry:     opts.DeadRetry,
		OnServerError: opts.OnServerError,
	})
}

// Options configure a Service. The zero value talks to 127.0.0.1:11211.
type Options struct {
	Servers []ServerSpec // empty => 127.0.0.1:11211

	Debug          bool          // log every request at debug level
	MaxKeyLength   int           // 0 => 250
	MaxValueLength int           // 0 => detect from the cluster
	DeadRetry      time.Duration // 0 => 30s; negative disables dead-server tracking
	CheckKeys      bool          // validate keys before sending them
	Timeout        time.Duration // per network operation; 0 => 3s

	Namespace string   // lock key prefix; "" => "memlock"
	Logger    Logger   // nil => NopLogger
	Hooks     Hooks    // nil => NopHooks
	Dial      DialFunc // nil => DialMemcache
}

// New validates opts and resolves the server list. It does no I/O; call
// Start to open the connection.
func New(opts Options) (*Service, error) {
	return newService(opts)
}
