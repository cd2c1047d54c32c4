// Package admin implements the memlock-admin subcommands.
package admin

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/unkn0wn-root/memlock/store"
)

// Client is the part of *memlock.Service the commands use.
type Client interface {
	GetStats(ctx context.Context, report string) ([]store.ServerStats, error)
	FlushAll(ctx context.Context) error
}

// Stats prints the general statistics of every answering server.
// It returns the number of servers printed.
func Stats(ctx context.Context, c Client, w io.Writer) (int, error) {
	return Report(ctx, c, w, "")
}

// Report prints the named report of every answering server.
func Report(ctx context.Context, c Client, w io.Writer, name string) (int, error) {
	stats, err := c.GetStats(ctx, name)
	if err != nil {
		return 0, err
	}
	return len(stats), Render(w, stats)
}

// Flush deletes every key on every server.
func Flush(ctx context.Context, c Client, w io.Writer) error {
	if err := c.FlushAll(ctx); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "all keys deleted")
	return err
}

// Render writes stats sorted by server, then by stat name.
func Render(w io.Writer, stats []store.ServerStats) error {
	stats = append([]store.ServerStats(nil), stats...)
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Server < stats[j].Server })

	plural := "s"
	if len(stats) == 1 {
		plural = ""
	}
	ew := &errWriter{w: w}
	ew.printf("%d server%s found\n\n", len(stats), plural)

	for _, s := range stats {
		ew.printf("%s:\n", s.Server)
		if len(s.Stats) == 0 {
			ew.printf("  <empty>\n")
			continue
		}
		keys := make([]string, 0, len(s.Stats))
		for k := range s.Stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ew.printf("  - %s: %s\n", k, s.Stats[k])
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
