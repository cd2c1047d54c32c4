package memlock

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted    = errors.New("memlock: service not started")
	ErrClosed        = errors.New("memlock: service closed")
	ErrUnknownReport = errors.New("memlock: unknown stats report")
	ErrMalformedKey  = errors.New("memlock: malformed key")
	ErrLockTimeout   = errors.New("memlock: timed out waiting for lock")
)

// ConfigError reports a server entry or option that cannot be used.
// It is returned at construction time and is never retried.
type ConfigError struct {
	Server string // spec name or index, empty for cluster-wide options
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Server != "" && e.Field != "":
		return fmt.Sprintf("memlock: config: server %q: %s: %s", e.Server, e.Field, e.Reason)
	case e.Server != "":
		return fmt.Sprintf("memlock: config: server %q: %s", e.Server, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("memlock: config: %s: %s", e.Field, e.Reason)
	default:
		return "memlock: config: " + e.Reason
	}
}

// ValueTooLargeError is returned by Set and Add for values above the
// effective max value length.
type ValueTooLargeError struct {
	Key  string
	Size int
	Max  int
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("memlock: value for %q is %d bytes, max is %d", e.Key, e.Size, e.Max)
}

// LockError wraps a store failure met while taking or releasing a lock.
type LockError struct {
	Key string
	Op  string // "acquire" or "release"
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("memlock: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }
