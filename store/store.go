// Package store defines the cache capabilities memlock needs from a backend.
//
// A Store is the one connection object shared by every lock and every plain
// cache call of a process, so implementations MUST be safe for concurrent use.
// Mutual exclusion of memlock locks rests entirely on Add being atomic on the
// remote side: two concurrent Adds of the same absent key must never both
// report stored=true.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNilClient is returned by adapters constructed without a driver client.
var ErrNilClient = errors.New("store: nil client")

// Server is one resolved backend address.
// Addr is "host:port" or "unix:<path>". Weight is >= 1.
type Server struct {
	Name   string
	Addr   string
	Weight int
}

// ServerStats is the answer of one reachable server to a stats query.
type ServerStats struct {
	Server string
	Stats  map[string]string
}

// Store is the cache capability interface.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value unconditionally. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores value only if key is absent.
	// Returns (false, nil) when the key already exists; err is reserved for
	// transport or server failures.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (stored bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// FlushAll invalidates every key on every server.
	FlushAll(ctx context.Context) error

	// Stats queries every server for the named report ("" = general stats).
	// Unreachable servers are left out of the result instead of failing the call.
	Stats(ctx context.Context, report string) ([]ServerStats, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
