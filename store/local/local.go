// Package local is an in-process store.Store.
//
// It gives single-process deployments (and tests) the same Add/Delete
// semantics as a memcached cluster without a network hop. Locks taken through
// it only exclude goroutines of the same process.
package local

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/memlock/store"
)

// ServerName is the name reported in Stats results.
const ServerName = "local"

type entry struct {
	value []byte
	exp   time.Time // zero => no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && !now.Before(e.exp)
}

// Store keeps entries in a map guarded by a RWMutex.
// An optional sweep loop prunes expired entries; reads never return them either way.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	maxItem int
	now     func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ store.Store = (*Store)(nil)

type Config struct {
	// MaxItemSize is reported as item_size_max in the settings report.
	// 0 leaves it out, as if the server did not advertise a limit.
	MaxItemSize int
	// SweepInterval enables a background loop deleting expired entries.
	SweepInterval time.Duration
}

func New(cfg Config) *Store {
	s := &Store{
		entries: make(map[string]entry),
		maxItem: cfg.MaxItemSize,
		now:     time.Now,
	}
	if cfg.SweepInterval > 0 {
		s.ticker = time.NewTicker(cfg.SweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Sweep()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...), exp: s.expiry(ttl)}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Add checks and inserts under the write lock, which makes it atomic for every
// goroutine sharing this Store.
func (s *Store) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.entries[key] = entry{value: append([]byte(nil), value...), exp: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) FlushAll(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Stats answers "" with curr_items and "settings" with item_size_max.
// Every other report is answered with an empty map.
func (s *Store) Stats(_ context.Context, report string) ([]store.ServerStats, error) {
	m := make(map[string]string)
	switch report {
	case "":
		now := s.now()
		n := 0
		s.mu.RLock()
		for _, e := range s.entries {
			if !e.expired(now) {
				n++
			}
		}
		s.mu.RUnlock()
		m["curr_items"] = strconv.Itoa(n)
	case "settings":
		if s.maxItem > 0 {
			m["item_size_max"] = strconv.Itoa(s.maxItem)
		}
	}
	return []store.ServerStats{{Server: ServerName, Stats: m}}, nil
}

// Sweep deletes expired entries.
func (s *Store) Sweep() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the sweep loop. Safe to call multiple times.
func (s *Store) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
