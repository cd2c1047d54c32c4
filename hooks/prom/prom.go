// Package prom exports memlock events as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	hooks, err := prom.New(reg, "myapp")
//	svc, _ := memlock.New(memlock.Options{Hooks: hooks})
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/unkn0wn-root/memlock"
)

// Hooks holds the collectors. Lock keys are never used as labels.
type Hooks struct {
	lockResults    *prometheus.CounterVec
	lockAttempts   prometheus.Histogram
	lockWait       *prometheus.HistogramVec
	serverErrors   *prometheus.CounterVec
	maxValueLength prometheus.Gauge
	lengthMismatch prometheus.Counter
}

var _ memlock.Hooks = (*Hooks)(nil)

// New creates the collectors under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	h := &Hooks{
		lockResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "lock_acquire_total",
			Help:      "Lock acquisitions by outcome.",
		}, []string{"status"}),
		lockAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "lock_attempts",
			Help:      "Add calls per lock acquisition.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring a lock.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		serverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "server_unreachable_total",
			Help:      "Network failures per cache server.",
		}, []string{"server"}),
		maxValueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "max_value_length_bytes",
			Help:      "Effective value-length limit after negotiation.",
		}),
		lengthMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memlock",
			Name:      "max_value_length_mismatch_total",
			Help:      "Configured max_value_length differed from the cluster.",
		}),
	}
	for _, c := range []prometheus.Collector{
		h.lockResults, h.lockAttempts, h.lockWait, h.serverErrors, h.maxValueLength, h.lengthMismatch,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) observe(status string, attempts int, waited time.Duration) {
	h.lockResults.WithLabelValues(status).Inc()
	h.lockAttempts.Observe(float64(attempts))
	h.lockWait.WithLabelValues(status).Observe(waited.Seconds())
}

func (h *Hooks) LockAcquired(_ string, attempts int, waited time.Duration) {
	h.observe(memlock.Acquired.String(), attempts, waited)
}

func (h *Hooks) LockTimedOut(_ string, attempts int, waited time.Duration) {
	h.observe(memlock.TimedOut.String(), attempts, waited)
}

func (h *Hooks) LockStoreError(string, error) {
	h.lockResults.WithLabelValues(memlock.StoreFailed.String()).Inc()
}

func (h *Hooks) ServerUnreachable(server string, _ error) {
	h.serverErrors.WithLabelValues(server).Inc()
}

func (h *Hooks) MaxValueLengthMismatch(int, int) { h.lengthMismatch.Inc() }

func (h *Hooks) MaxValueLengthResolved(effective int) { h.maxValueLength.Set(float64(effective)) }
