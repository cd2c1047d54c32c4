package memcache

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/unkn0wn-root/memlock/internal/wire"
	"github.com/unkn0wn-root/memlock/store"
)

// Stats asks every live server for report, in configuration order.
// A server that cannot be reached is marked dead, reported through
// OnServerError and left out. A server that answers with an error line is
// left out but stays in rotation.
func (m *Memcache) Stats(ctx context.Context, report string) ([]store.ServerStats, error) {
	nodes := m.sel.live()
	out := make([]store.ServerStats, 0, len(nodes))
	for _, n := range nodes {
		stats, err := m.statsFrom(ctx, n.addr, report)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var se *wire.ServerError
			if !errors.As(err, &se) {
				m.sel.markDead(n.addr)
			}
			m.onErr(n.server.Addr, err)
			continue
		}
		out = append(out, store.ServerStats{Server: n.server.Addr, Stats: stats})
	}
	return out, nil
}

func (m *Memcache) statsFrom(ctx context.Context, addr net.Addr, report string) (map[string]string, error) {
	d := net.Dialer{Timeout: m.timeout}
	conn, err := d.DialContext(ctx, addr.Network(), addr.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
		return nil, err
	}
	if err := wire.WriteStats(conn, report); err != nil {
		return nil, err
	}
	return wire.ReadStats(bufio.NewReader(conn))
}
