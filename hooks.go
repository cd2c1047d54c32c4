package memlock

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Lock hooks run on the acquiring goroutine.
type Hooks interface {
	// A lock was acquired after attempts Add calls.
	LockAcquired(key string, attempts int, waited time.Duration)

	// MaxWait elapsed while another holder kept the lock.
	LockTimedOut(key string, attempts int, waited time.Duration)

	// The store failed an Add (not contention); acquisition stopped.
	LockStoreError(key string, err error)

	// A server failed at the network level or was left out of a stats answer.
	ServerUnreachable(server string, err error)

	// Configured max_value_length differs from the cluster's item_size_max.
	MaxValueLengthMismatch(configured, detected int)

	// Value-length negotiation finished with the effective limit.
	MaxValueLengthResolved(effective int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LockAcquired(string, int, time.Duration) {}
func (NopHooks) LockTimedOut(string, int, time.Duration) {}
func (NopHooks) LockStoreError(string, error)            {}
func (NopHooks) ServerUnreachable(string, error)         {}
func (NopHooks) MaxValueLengthMismatch(int, int)         {}
func (NopHooks) MaxValueLengthResolved(int)              {}
