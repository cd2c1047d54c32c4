package memlock

import "time"

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 11211
	DefaultWeight         = 1
	DefaultMaxKeyLength   = 250              // memcached SERVER_MAX_KEY_LENGTH
	DefaultMaxValueLength = 1024 * 1024      // memcached default item_size_max
	DefaultDeadRetry      = 30 * time.Second // seconds a failed server sits out
	DefaultTimeout        = 3 * time.Second
	DefaultNamespace      = "memlock"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
