package memlock

import (
	"context"
	"time"

	"github.com/unkn0wn-root/memlock/internal/util"
)

// lockValue is what a held lock stores under its key.
var lockValue = []byte("1")

// AcquireStatus tags the outcome of Lock.Acquire.
type AcquireStatus int

const (
	Acquired    AcquireStatus = iota + 1 // the lock is held by the caller
	TimedOut                             // MaxWait elapsed under contention
	StoreFailed                          // the store failed; see AcquireResult.Err
)

func (s AcquireStatus) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case TimedOut:
		return "timed_out"
	case StoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}

type AcquireResult struct {
	Status   AcquireStatus
	Attempts int
	Waited   time.Duration
	Err      error // set only when Status == StoreFailed
}

// OK reports whether the lock was acquired.
func (r AcquireResult) OK() bool { return r.Status == Acquired }

// LockOptions tune one lock. Negative durations are treated as 0.
type LockOptions struct {
	TTL          time.Duration // lifetime of the lock entry; 0 = until released
	PollInterval time.Duration // pause between attempts; 0 busy-polls
	MaxWait      time.Duration // total wait bound; 0 = a single attempt
	// NoReply makes Release fire-and-forget: delete failures are logged and
	// dropped. Acquire always waits for the store's answer.
	NoReply bool
}

// Lock is a cluster-wide mutual exclusion primitive built on Add and Delete.
//
// A Lock borrows the Service connection and must not outlive it. Ownership is
// not checked on release: callers pair Acquire and Release themselves, or use
// Service.WithLock.
type Lock struct {
	svc  *Service
	key  string
	opts LockOptions
}

// NewLock returns a lock for id. It does no I/O.
func (s *Service) NewLock(id uint64, opts LockOptions) *Lock {
	opts.TTL = max(opts.TTL, 0)
	opts.PollInterval = max(opts.PollInterval, 0)
	opts.MaxWait = max(opts.MaxWait, 0)
	return &Lock{svc: s, key: util.LockKey(s.ns, id), opts: opts}
}

// Key returns the cache key of the lock.
func (l *Lock) Key() string { return l.key }

// Acquire polls Add until it stores the lock entry or MaxWait elapses.
// A store failure stops polling at once. ctx is only checked between
// attempts; its deadline is not passed on to the store.
func (l *Lock) Acquire(ctx context.Context) AcquireResult {
	t0 := time.Now()
	attempts := 0
	for {
		attempts++
		stored, err := l.svc.Add(ctx, l.key, lockValue, l.opts.TTL)
		waited := time.Since(t0)

		switch {
		case err != nil:
			l.svc.hooks.LockStoreError(l.key, err)
			l.svc.log.Error("memlock acquire failed", Fields{"key": l.key, "attempts": attempts, "err": err})
			return AcquireResult{Status: StoreFailed, Attempts: attempts, Waited: waited, Err: err}
		case stored:
			l.svc.hooks.LockAcquired(l.key, attempts, waited)
			l.svc.log.Debug("memlock acquired", Fields{"key": l.key, "attempts": attempts, "waited": waited})
			return AcquireResult{Status: Acquired, Attempts: attempts, Waited: waited}
		case waited >= l.opts.MaxWait:
			l.svc.hooks.LockTimedOut(l.key, attempts, waited)
			l.svc.log.Debug("memlock wait timed out", Fields{"key": l.key, "attempts": attempts, "waited": waited})
			return AcquireResult{Status: TimedOut, Attempts: attempts, Waited: waited}
		}

		if err := pause(ctx, l.opts.PollInterval); err != nil {
			return AcquireResult{Status: StoreFailed, Attempts: attempts, Waited: time.Since(t0), Err: err}
		}
	}
}

// Release deletes the lock entry. Releasing a lock that is not held is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	err := l.svc.Delete(ctx, l.key)
	if err == nil {
		return nil
	}
	if l.opts.NoReply {
		l.svc.log.Debug("memlock release failed (noreply)", Fields{"key": l.key, "err": err})
		return nil
	}
	return &LockError{Key: l.key, Op: "release", Err: err}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithLock runs fn while holding lock id. The lock is released on every exit
// path of fn, panics included. A timeout returns ErrLockTimeout and a store
// failure a *LockError; fn is not called in either case.
func (s *Service) WithLock(ctx context.Context, id uint64, opts LockOptions, fn func(context.Context) error) (err error) {
	l := s.NewLock(id, opts)
	res := l.Acquire(ctx)
	switch res.Status {
	case TimedOut:
		return ErrLockTimeout
	case StoreFailed:
		return &LockError{Key: l.key, Op: "acquire", Err: res.Err}
	}

	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ctx)
}
