package memcache

import (
	"fmt"
	"hash/crc32"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/memlock/store"
)

// maxRehash bounds how many buckets PickServer probes when servers are dead.
const maxRehash = 10

type node struct {
	server    store.Server
	addr      net.Addr
	deadUntil time.Time
}

func (n *node) alive(now time.Time) bool { return !now.Before(n.deadUntil) }

// selector is a gomemcache.ServerSelector.
// A server of weight N owns N buckets. A server marked dead is skipped until
// deadRetry has elapsed and its keys rehash onto other buckets.
type selector struct {
	mu        sync.RWMutex
	nodes     []*node
	buckets   []*node
	deadRetry time.Duration
	now       func() time.Time
}

var _ gomemcache.ServerSelector = (*selector)(nil)

func newSelector(servers []store.Server, deadRetry time.Duration) (*selector, error) {
	s := &selector{deadRetry: deadRetry, now: time.Now}
	for _, srv := range servers {
		addr, err := resolveAddr(srv.Addr)
		if err != nil {
			return nil, fmt.Errorf("memcache: resolve %q: %w", srv.Addr, err)
		}
		n := &node{server: srv, addr: addr}
		s.nodes = append(s.nodes, n)
		for i := 0; i < max(srv.Weight, 1); i++ {
			s.buckets = append(s.buckets, n)
		}
	}
	return s, nil
}

// resolveAddr maps "unix:<path>" to a unix socket and anything else to TCP.
func resolveAddr(addr string) (net.Addr, error) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return net.ResolveUnixAddr("unix", path)
	}
	return net.ResolveTCPAddr("tcp", addr)
}

func (s *selector) PickServer(key string) (net.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.buckets) == 0 {
		return nil, gomemcache.ErrNoServers
	}
	now := s.now()
	h := crc32.ChecksumIEEE([]byte(key))
	for i := 0; i < maxRehash; i++ {
		n := s.buckets[h%uint32(len(s.buckets))]
		if n.alive(now) {
			return n.addr, nil
		}
		h = crc32.ChecksumIEEE([]byte(strconv.FormatUint(uint64(h), 10) + strconv.Itoa(i)))
	}
	return nil, gomemcache.ErrNoServers
}

// Each visits every live server once.
func (s *selector) Each(f func(net.Addr) error) error {
	for _, n := range s.live() {
		if err := f(n.addr); err != nil {
			return err
		}
	}
	return nil
}

func (s *selector) live() []*node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]*node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.alive(now) {
			out = append(out, n)
		}
	}
	return out
}

// markDead takes addr out of rotation for deadRetry. No-op when deadRetry <= 0.
// Returns the configured address of the node, or "" if addr is unknown.
func (s *selector) markDead(addr net.Addr) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.addr.Network() == addr.Network() && n.addr.String() == addr.String() {
			if s.deadRetry > 0 {
				n.deadUntil = s.now().Add(s.deadRetry)
			}
			return n.server.Addr
		}
	}
	return ""
}
