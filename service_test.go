package memlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/memlock/store"
	"github.com/unkn0wn-root/memlock/store/local"
)

type logEntry struct {
	level string
	msg   string
	f     Fields
}

type recLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level, msg, f})
	l.mu.Unlock()
}
func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func (l *recLogger) count(level, contains string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, contains) {
			n++
		}
	}
	return n
}

type recHooks struct {
	NopHooks
	mu          sync.Mutex
	acquired    int
	timedOut    int
	storeErrs   int
	mismatch    [][2]int
	resolved    []int
	unreachable []string
}

func (h *recHooks) LockAcquired(string, int, time.Duration) {
	h.mu.Lock()
	h.acquired++
	h.mu.Unlock()
}
func (h *recHooks) LockTimedOut(string, int, time.Duration) {
	h.mu.Lock()
	h.timedOut++
	h.mu.Unlock()
}
func (h *recHooks) LockStoreError(string, error) {
	h.mu.Lock()
	h.storeErrs++
	h.mu.Unlock()
}
func (h *recHooks) ServerUnreachable(server string, _ error) {
	h.mu.Lock()
	h.unreachable = append(h.unreachable, server)
	h.mu.Unlock()
}
func (h *recHooks) MaxValueLengthMismatch(configured, detected int) {
	h.mu.Lock()
	h.mismatch = append(h.mismatch, [2]int{configured, detected})
	h.mu.Unlock()
}
func (h *recHooks) MaxValueLengthResolved(effective int) {
	h.mu.Lock()
	h.resolved = append(h.resolved, effective)
	h.mu.Unlock()
}

// fakeStore is a local store whose settings report and Add failures are
// scripted by the test.
type fakeStore struct {
	*local.Store
	settings []store.ServerStats
	addErr   error
	dials    int
	closed   int
	flushed  int
}

func (f *fakeStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if f.addErr != nil {
		return false, f.addErr
	}
	return f.Store.Add(ctx, key, value, ttl)
}

func (f *fakeStore) FlushAll(ctx context.Context) error {
	f.flushed++
	return f.Store.FlushAll(ctx)
}

func (f *fakeStore) Stats(ctx context.Context, report string) ([]store.ServerStats, error) {
	if report == "settings" && f.settings != nil {
		return f.settings, nil
	}
	return f.Store.Stats(ctx, report)
}

func (f *fakeStore) Close(ctx context.Context) error {
	f.closed++
	return f.Store.Close(ctx)
}

func newFakeStore() *fakeStore { return &fakeStore{Store: local.New(local.Config{})} }

func (f *fakeStore) dial(context.Context, []Server, DialOptions) (store.Store, error) {
	f.dials++
	return f, nil
}

func settingsOf(sizes ...string) []store.ServerStats {
	out := make([]store.ServerStats, len(sizes))
	for i, s := range sizes {
		out[i] = store.ServerStats{Server: "10.0.0." + string(rune('1'+i)) + ":11211", Stats: map[string]string{"item_size_max": s}}
	}
	return out
}

func newTestService(t *testing.T, fs *fakeStore, optsOpt func(*Options)) *Service {
	t.Helper()
	opts := Options{Dial: fs.dial}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	svc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func startTestService(t *testing.T, fs *fakeStore, optsOpt func(*Options)) *Service {
	t.Helper()
	svc := newTestService(t, fs, optsOpt)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

// ==============================
// Value-length negotiation
// ==============================

func TestNegotiateTakesClusterMinimum(t *testing.T) {
	fs := newFakeStore()
	fs.settings = settingsOf("1048576", "2097152")
	hooks := &recHooks{}
	svc := startTestService(t, fs, func(o *Options) { o.Hooks = hooks })

	if got := svc.MaxValueLength(); got != 1048576 {
		t.Fatalf("MaxValueLength=%d want 1048576", got)
	}
	if len(hooks.mismatch) != 0 {
		t.Fatalf("no configured value, no mismatch expected: %v", hooks.mismatch)
	}
	if len(hooks.resolved) != 1 || hooks.resolved[0] != 1048576 {
		t.Fatalf("resolved hook: %v", hooks.resolved)
	}
}

func TestNegotiateWarnsOnConfiguredMismatch(t *testing.T) {
	fs := newFakeStore()
	fs.settings = settingsOf("1048576", "2097152")
	hooks := &recHooks{}
	logger := &recLogger{}
	svc := startTestService(t, fs, func(o *Options) {
		o.MaxValueLength = 500000
		o.Hooks = hooks
		o.Logger = logger
	})

	if got := svc.MaxValueLength(); got != 1048576 {
		t.Fatalf("detected minimum must win, got %d", got)
	}
	if logger.count("warn", "max_value_length differs") != 1 {
		t.Fatalf("expected one mismatch warning, log=%v", logger.entries)
	}
	if len(hooks.mismatch) != 1 || hooks.mismatch[0] != [2]int{500000, 1048576} {
		t.Fatalf("mismatch hook: %v", hooks.mismatch)
	}
}

func TestNegotiateFallbacks(t *testing.T) {
	// No server advertises a limit: configured value is used.
	fs := newFakeStore()
	fs.settings = []store.ServerStats{{Server: "a", Stats: map[string]string{}}}
	svc := startTestService(t, fs, func(o *Options) { o.MaxValueLength = 4096 })
	if got := svc.MaxValueLength(); got != 4096 {
		t.Fatalf("configured fallback: got %d", got)
	}

	// Nothing configured, nothing reported: protocol default.
	fs2 := newFakeStore()
	fs2.settings = []store.ServerStats{}
	svc2 := startTestService(t, fs2, nil)
	if got := svc2.MaxValueLength(); got != DefaultMaxValueLength {
		t.Fatalf("default fallback: got %d", got)
	}

	// Garbage values are ignored.
	fs3 := newFakeStore()
	fs3.settings = settingsOf("junk", "2097152")
	logger := &recLogger{}
	svc3 := startTestService(t, fs3, func(o *Options) { o.Logger = logger })
	if got := svc3.MaxValueLength(); got != 2097152 {
		t.Fatalf("bad value should be skipped, got %d", got)
	}
	if logger.count("warn", "bad item_size_max") != 1 {
		t.Fatalf("expected a warning for the bad value")
	}
}

func TestEffectiveMaxValueLength(t *testing.T) {
	eff, det := EffectiveMaxValueLength(0, []int{1048576, 2097152})
	if eff != 1048576 || det != 1048576 {
		t.Fatalf("eff=%d det=%d", eff, det)
	}
	eff, det = EffectiveMaxValueLength(500000, []int{1048576, 2097152})
	if eff != 1048576 || det != 1048576 {
		t.Fatalf("eff=%d det=%d", eff, det)
	}
	eff, det = EffectiveMaxValueLength(500000, nil)
	if eff != 500000 || det != 0 {
		t.Fatalf("eff=%d det=%d", eff, det)
	}
	eff, _ = EffectiveMaxValueLength(0, nil)
	if eff != DefaultMaxValueLength {
		t.Fatalf("eff=%d", eff)
	}
}

// ==============================
// Lifecycle and verbs
// ==============================

func TestStartIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := startTestService(t, fs, nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if fs.dials != 1 {
		t.Fatalf("connection opened %d times", fs.dials)
	}
}

func TestStartFailureIsSticky(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	svc, err := New(Options{Dial: func(context.Context, []Server, DialOptions) (store.Store, error) {
		calls++
		return nil, boom
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := svc.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("second Start should repeat the first result, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("dial called %d times", calls)
	}
}

func TestVerbsRequireStart(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil)
	ctx := context.Background()
	if _, _, err := svc.Get(ctx, "k"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Get before Start: %v", err)
	}
	if _, err := svc.Add(ctx, "k", []byte("1"), 0); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Add before Start: %v", err)
	}
}

func TestVerbsPassThrough(t *testing.T) {
	ctx := context.Background()
	svc := startTestService(t, newFakeStore(), nil)

	if err := svc.Set(ctx, "user:1", []byte("ada"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := svc.Get(ctx, "user:1")
	if err != nil || !ok || string(v) != "ada" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	stored, err := svc.Add(ctx, "user:1", []byte("bob"), 0)
	if err != nil || stored {
		t.Fatalf("Add on existing key: stored=%v err=%v", stored, err)
	}
	if err := svc.Delete(ctx, "user:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := svc.Get(ctx, "user:1"); ok {
		t.Fatalf("key survived Delete")
	}
}

func TestValueLengthEnforced(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fs.settings = settingsOf("8")
	svc := startTestService(t, fs, nil)

	err := svc.Set(ctx, "k", []byte("123456789"), 0)
	var tooLarge *ValueTooLargeError
	if !errors.As(err, &tooLarge) || tooLarge.Max != 8 || tooLarge.Size != 9 {
		t.Fatalf("expected ValueTooLargeError, got %v", err)
	}
	if _, err := svc.Add(ctx, "k", []byte("123456789"), 0); !errors.As(err, &tooLarge) {
		t.Fatalf("Add should enforce the limit too, got %v", err)
	}
	if err := svc.Set(ctx, "k", []byte("12345678"), 0); err != nil {
		t.Fatalf("value at the limit should pass: %v", err)
	}
}

func TestCheckKeys(t *testing.T) {
	ctx := context.Background()
	svc := startTestService(t, newFakeStore(), func(o *Options) {
		o.CheckKeys = true
		o.MaxKeyLength = 10
	})
	for _, k := range []string{"has space", "12345678901", "", "ctl\x01"} {
		if err := svc.Set(ctx, k, []byte("v"), 0); !errors.Is(err, ErrMalformedKey) {
			t.Fatalf("key %q: expected ErrMalformedKey, got %v", k, err)
		}
	}
	if err := svc.Set(ctx, "ok-key", []byte("v"), 0); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	// Without CheckKeys the service does not look at keys.
	lax := startTestService(t, newFakeStore(), nil)
	if err := lax.Set(ctx, "has space", []byte("v"), 0); err != nil {
		t.Fatalf("unchecked key rejected: %v", err)
	}
}

func TestDebugTracesRequests(t *testing.T) {
	ctx := context.Background()
	logger := &recLogger{}
	svc := startTestService(t, newFakeStore(), func(o *Options) {
		o.Debug = true
		o.Logger = logger
	})
	_, _, _ = svc.Get(ctx, "k")
	_ = svc.Delete(ctx, "k")
	if n := logger.count("debug", "memlock.request"); n != 2 {
		t.Fatalf("expected 2 request traces, got %d", n)
	}
}

func TestCloseThenUse(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := startTestService(t, fs, nil)
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fs.closed != 1 {
		t.Fatalf("store closed %d times", fs.closed)
	}
	if _, _, err := svc.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close: %v", err)
	}
	if err := svc.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close: %v", err)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	cases := map[string]Options{
		"negative max key":   {MaxKeyLength: -1},
		"negative max value": {MaxValueLength: -1},
		"namespace spaces":   {Namespace: "my app"},
		"bad server":         {Servers: []ServerSpec{{Host: "only-host"}}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(opts)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
		})
	}
}

// ==============================
// Admin operations
// ==============================

func TestGetStatsValidatesReport(t *testing.T) {
	svc := startTestService(t, newFakeStore(), nil)
	if _, err := svc.GetStats(context.Background(), "bogus"); !errors.Is(err, ErrUnknownReport) {
		t.Fatalf("expected ErrUnknownReport, got %v", err)
	}
	for _, r := range append([]string{""}, Reports...) {
		if _, err := svc.GetStats(context.Background(), r); err != nil {
			t.Fatalf("report %q rejected: %v", r, err)
		}
	}
}

func TestGetStatsSortedByServer(t *testing.T) {
	fs := newFakeStore()
	fs.settings = []store.ServerStats{
		{Server: "10.0.0.2:11211", Stats: map[string]string{"item_size_max": "1048576"}},
		{Server: "10.0.0.1:11211", Stats: map[string]string{"item_size_max": "1048576"}},
	}
	svc := startTestService(t, fs, nil)
	st, err := svc.GetStats(context.Background(), "settings")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if len(st) != 2 || st[0].Server != "10.0.0.1:11211" || st[1].Server != "10.0.0.2:11211" {
		t.Fatalf("unexpected order: %+v", st)
	}
}

func TestGetStatsAllServersDownIsEmpty(t *testing.T) {
	hooks := &recHooks{}
	svc, err := New(Options{
		Servers: []ServerSpec{{Host: "127.0.0.1", Port: 1}, {Host: "127.0.0.1", Port: 2}},
		Timeout: 200 * time.Millisecond,
		Hooks:   hooks,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := svc.GetStats(context.Background(), "")
	if err != nil {
		t.Fatalf("GetStats must tolerate unreachable servers: %v", err)
	}
	if len(st) != 0 {
		t.Fatalf("expected no entries, got %+v", st)
	}
	if len(hooks.unreachable) != 2 {
		t.Fatalf("expected both servers reported unreachable, got %v", hooks.unreachable)
	}
}

func TestFlushAllWithoutStart(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := newTestService(t, fs, nil)

	if err := svc.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if fs.flushed != 1 || fs.dials != 1 || fs.closed != 1 {
		t.Fatalf("expected a throwaway connection: flushed=%d dials=%d closed=%d", fs.flushed, fs.dials, fs.closed)
	}
}

func TestFlushAllUsesLiveConnection(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	svc := startTestService(t, fs, nil)
	_ = svc.Set(ctx, "a", []byte("1"), 0)

	if err := svc.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if fs.dials != 1 || fs.closed != 0 {
		t.Fatalf("live connection should be reused: dials=%d closed=%d", fs.dials, fs.closed)
	}
	if _, ok, _ := svc.Get(ctx, "a"); ok {
		t.Fatalf("key survived FlushAll")
	}
}

// reentrantHooks reads service state from inside negotiation callbacks.
type reentrantHooks struct {
	NopHooks
	svc  *Service
	seen int
}

func (h *reentrantHooks) MaxValueLengthResolved(int) { h.seen = h.svc.MaxValueLength() }

func TestStartHooksMayReadService(t *testing.T) {
	fs := newFakeStore()
	fs.settings = settingsOf("1048576")
	hooks := &reentrantHooks{}
	svc := newTestService(t, fs, func(o *Options) { o.Hooks = hooks })
	hooks.svc = svc
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start blocked on a hook reading the service")
	}
	// Negotiation is not published yet while the hook runs.
	if hooks.seen != DefaultMaxValueLength {
		t.Fatalf("hook saw %d", hooks.seen)
	}
	if svc.MaxValueLength() != 1048576 {
		t.Fatalf("MaxValueLength=%d", svc.MaxValueLength())
	}
}

func TestCloseDuringStart(t *testing.T) {
	fs := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	svc, err := New(Options{Dial: func(ctx context.Context, servers []Server, o DialOptions) (store.Store, error) {
		close(entered)
		<-release
		return fs.dial(ctx, servers, o)
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- svc.Close(context.Background()) }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close waited for the dial")
	}

	close(release)
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after concurrent Close: %v", err)
	}
	if fs.closed != 1 {
		t.Fatalf("connection opened during Close was not closed: %d", fs.closed)
	}
}
