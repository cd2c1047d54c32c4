// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{AcquiredEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	svc, _ := memlock.New(memlock.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/memlock"
)

// Hooks forwards events to inner on background workers. Events are dropped
// when the queue is full.
type Hooks struct {
	inner   memlock.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ memlock.Hooks = (*Hooks)(nil)

func New(inner memlock.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if inner == nil {
		inner = memlock.NopHooks{}
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events sent after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LockAcquired(k string, n int, d time.Duration) {
	h.try(func() { h.inner.LockAcquired(k, n, d) })
}
func (h *Hooks) LockTimedOut(k string, n int, d time.Duration) {
	h.try(func() { h.inner.LockTimedOut(k, n, d) })
}
func (h *Hooks) LockStoreError(k string, err error) { h.try(func() { h.inner.LockStoreError(k, err) }) }
func (h *Hooks) ServerUnreachable(s string, err error) {
	h.try(func() { h.inner.ServerUnreachable(s, err) })
}
func (h *Hooks) MaxValueLengthMismatch(c, d int) {
	h.try(func() { h.inner.MaxValueLengthMismatch(c, d) })
}
func (h *Hooks) MaxValueLengthResolved(e int) { h.try(func() { h.inner.MaxValueLengthResolved(e) }) }
