package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/memlock"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	AcquiredEvery uint64
	TimedOutEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	acquiredCtr atomic.Uint64
	timedOutCtr atomic.Uint64
}

var _ memlock.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LockAcquired(key string, attempts int, waited time.Duration) {
	if h.l == nil || !sample(h.opts.AcquiredEvery, &h.acquiredCtr) {
		return
	}
	h.l.Debug("memlock.lock_acquired",
		"key", h.redact(key),
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) LockTimedOut(key string, attempts int, waited time.Duration) {
	if h.l == nil || !sample(h.opts.TimedOutEvery, &h.timedOutCtr) {
		return
	}
	h.l.Info("memlock.lock_timed_out",
		"key", h.redact(key),
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) LockStoreError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("memlock.lock_store_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ServerUnreachable(server string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("memlock.server_unreachable",
		"server", server,
		"err", err)
}

func (h *Hooks) MaxValueLengthMismatch(configured, detected int) {
	if h.l == nil {
		return
	}
	h.l.Warn("memlock.max_value_length_mismatch",
		"configured", configured,
		"detected", detected)
}

func (h *Hooks) MaxValueLengthResolved(effective int) {
	if h.l == nil {
		return
	}
	h.l.Info("memlock.max_value_length", "effective", effective)
}
