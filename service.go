package memlock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/memlock/internal/util"
	"github.com/unkn0wn-root/memlock/store"
)

// Reports lists the stats report names GetStats accepts besides "".
var Reports = []string{"conns", "items", "settings", "sizes", "sizes_disable", "sizes_enable", "slabs"}

// Service owns the single connection of a process to the cache cluster.
//
// It is created once, started once and shared by every lock and cache call;
// all methods are safe for concurrent use.
type Service struct {
	servers    []Server
	debug      bool
	maxKeyLen  int
	confMaxVal int
	deadRetry  time.Duration
	checkKeys  bool
	timeout    time.Duration
	ns         string
	log        Logger
	hooks      Hooks
	dial       DialFunc

	startMu  sync.Mutex // serializes Start
	mu       sync.RWMutex
	st       store.Store
	started  bool
	closed   bool
	startErr error
	maxVal   int
}

func newService(opts Options) (*Service, error) {
	servers, err := ResolveServers(opts.Servers)
	if err != nil {
		return nil, err
	}
	if opts.MaxKeyLength < 0 {
		return nil, &ConfigError{Field: "max_key_length", Reason: "must be >= 0"}
	}
	if opts.MaxValueLength < 0 {
		return nil, &ConfigError{Field: "max_value_length", Reason: "must be >= 0"}
	}
	if !util.ValidKey(coalesce(opts.Namespace, DefaultNamespace), 0) {
		return nil, &ConfigError{Field: "namespace", Reason: "must not contain spaces or control characters"}
	}

	s := &Service{
		servers:    servers,
		debug:      opts.Debug,
		maxKeyLen:  coalesce(opts.MaxKeyLength, DefaultMaxKeyLength),
		confMaxVal: opts.MaxValueLength,
		deadRetry:  coalesce(opts.DeadRetry, DefaultDeadRetry),
		checkKeys:  opts.CheckKeys,
		timeout:    coalesce(opts.Timeout, DefaultTimeout),
		ns:         coalesce(opts.Namespace, DefaultNamespace),
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		dial:       opts.Dial,
	}
	if s.dial == nil {
		s.dial = DialMemcache
	}
	if s.deadRetry < 0 {
		s.deadRetry = 0
	}
	return s, nil
}

// Servers returns the resolved server list in declaration order.
func (s *Service) Servers() []Server {
	return append([]Server(nil), s.servers...)
}

// Namespace returns the lock key prefix.
func (s *Service) Namespace() string { return s.ns }

// Start opens the connection and negotiates the max value length.
// Only the first call does any work; later calls return its result.
// Hooks and logging during Start run without the state lock held.
func (s *Service) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.RLock()
	closed, started, startErr := s.closed, s.started, s.startErr
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if started {
		return startErr
	}

	st, err := s.open(ctx)
	maxVal := 0
	if err == nil {
		maxVal = s.negotiateMaxValueLength(ctx, st)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if st != nil {
			_ = st.Close(ctx)
		}
		return ErrClosed
	}
	s.started = true
	s.startErr = err
	s.st = st
	s.maxVal = maxVal
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.log.Info("memlock started", Fields{
		"servers":          len(s.servers),
		"max_value_length": maxVal,
	})
	return nil
}

// Close closes the connection. The Service cannot be started again.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.st == nil {
		return nil
	}
	err := s.st.Close(ctx)
	s.st = nil
	return err
}

// MaxValueLength is the limit enforced by Set and Add. Before Start it is the
// configured value or the protocol default.
func (s *Service) MaxValueLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.maxVal > 0 {
		return s.maxVal
	}
	return coalesce(s.confMaxVal, DefaultMaxValueLength)
}

func (s *Service) open(ctx context.Context) (store.Store, error) {
	st, err := s.dial(ctx, s.servers, DialOptions{
		Debug:         s.debug,
		Timeout:       s.timeout,
		DeadRetry:     s.deadRetry,
		OnServerError: s.serverError,
	})
	if err != nil {
		return nil, fmt.Errorf("memlock: open connection: %w", err)
	}
	return st, nil
}

func (s *Service) serverError(server string, err error) {
	s.log.Warn("memlock server unreachable", Fields{"server": server, "err": err})
	s.hooks.ServerUnreachable(server, err)
}

func (s *Service) conn() (store.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.st == nil:
		return nil, ErrNotStarted
	}
	return s.st, nil
}

// withStore runs f on the live connection, or on a short-lived one when the
// Service has not been started.
func (s *Service) withStore(ctx context.Context, f func(store.Store) error) error {
	st, err := s.conn()
	if err == nil {
		return f(st)
	}
	if err != ErrNotStarted {
		return err
	}
	st, err = s.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)
	return f(st)
}

func (s *Service) checkKey(key string) error {
	if s.checkKeys && !util.ValidKey(key, s.maxKeyLen) {
		return fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return nil
}

func (s *Service) checkValue(key string, value []byte) error {
	if limit := s.MaxValueLength(); len(value) > limit {
		return &ValueTooLargeError{Key: key, Size: len(value), Max: limit}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.checkKey(key); err != nil {
		return nil, false, err
	}
	st, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	s.trace("get", key, nil)
	return st.Get(ctx, key)
}

// Set stores value under key. ttl <= 0 means no expiry.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	if err := s.checkValue(key, value); err != nil {
		return err
	}
	st, err := s.conn()
	if err != nil {
		return err
	}
	s.trace("set", key, Fields{"bytes": len(value), "ttl": ttl})
	return st.Set(ctx, key, value, ttl)
}

// Add stores value only if key is absent. (false, nil) means the key exists.
func (s *Service) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.checkKey(key); err != nil {
		return false, err
	}
	if err := s.checkValue(key, value); err != nil {
		return false, err
	}
	st, err := s.conn()
	if err != nil {
		return false, err
	}
	s.trace("add", key, Fields{"bytes": len(value), "ttl": ttl})
	return st.Add(ctx, key, value, ttl)
}

// Delete removes key; an absent key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	st, err := s.conn()
	if err != nil {
		return err
	}
	s.trace("delete", key, nil)
	return st.Delete(ctx, key)
}

// FlushAll deletes every key on every server. It is destructive and cannot
// be undone; callers own any confirmation step. It works on a Service that
// was never started by opening a throwaway connection.
func (s *Service) FlushAll(ctx context.Context) error {
	return s.withStore(ctx, func(st store.Store) error {
		s.trace("flush_all", "", nil)
		if err := st.FlushAll(ctx); err != nil {
			return err
		}
		s.log.Warn("memlock flushed all servers", Fields{"servers": len(s.servers)})
		return nil
	})
}

// GetStats queries every reachable server for report ("" = general stats)
// and returns one entry per answering server, sorted by address.
// Unreachable servers are omitted; that is not an error.
func (s *Service) GetStats(ctx context.Context, report string) ([]store.ServerStats, error) {
	if !validReport(report) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, report)
	}
	var out []store.ServerStats
	err := s.withStore(ctx, func(st store.Store) error {
		s.trace("stats", "", Fields{"report": report})
		res, err := st.Stats(ctx, report)
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Server < out[j].Server })
	return out, nil
}

func validReport(report string) bool {
	if report == "" {
		return true
	}
	i := sort.SearchStrings(Reports, report)
	return i < len(Reports) && Reports[i] == report
}

// negotiateMaxValueLength reads item_size_max from every server's settings
// report. The smallest advertised value wins over configuration; a differing
// configured value only produces a warning.
func (s *Service) negotiateMaxValueLength(ctx context.Context, st store.Store) int {
	stats, err := st.Stats(ctx, "settings")
	if err != nil {
		s.log.Warn("memlock max value length detection failed", Fields{"err": err})
	}

	reported := make([]int, 0, len(stats))
	for _, ss := range stats {
		raw, ok := ss.Stats["item_size_max"]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			s.log.Warn("memlock ignoring bad item_size_max", Fields{"server": ss.Server, "value": raw})
			continue
		}
		reported = append(reported, n)
	}

	effective, detected := EffectiveMaxValueLength(s.confMaxVal, reported)
	if s.confMaxVal != 0 && detected != 0 && s.confMaxVal != detected {
		s.log.Warn("memlock max_value_length differs from cluster item_size_max", Fields{
			"configured": s.confMaxVal,
			"detected":   detected,
		})
		s.hooks.MaxValueLengthMismatch(s.confMaxVal, detected)
	}
	s.hooks.MaxValueLengthResolved(effective)
	return effective
}

// EffectiveMaxValueLength picks the value-length limit: the smallest reported
// server maximum if any, else configured, else DefaultMaxValueLength.
// detected is the smallest reported value, 0 when none was reported.
func EffectiveMaxValueLength(configured int, reported []int) (effective, detected int) {
	for _, n := range reported {
		if n > 0 && (detected == 0 || n < detected) {
			detected = n
		}
	}
	return coalesce(detected, coalesce(configured, DefaultMaxValueLength)), detected
}
