// Package memlock is a client-side service for a memcached-compatible cache
// cluster with a cooperative, cluster-wide lock built on the store's atomic
// add (insert-if-absent) and delete.
//
// Components:
//   - ResolveServers: host:port, unix socket and memcache:// URI specs -> ordered server list.
//   - Service: owns the one connection of the process, passes cache verbs
//     through to a store.Store and negotiates the max value length with the
//     live cluster at Start.
//   - Lock: polling mutual exclusion over a Service with a bounded wait.
//
// Keys:
//
//	<namespace>_<id>_lock  - lock entries; keep application keys out of this shape
//
// Lock pattern:
//
//	svc, _ := memlock.New(memlock.Options{Servers: specs})
//	_ = svc.Start(ctx)
//	err := svc.WithLock(ctx, sessionID, memlock.LockOptions{
//	    TTL:          30 * time.Second,
//	    PollInterval: 100 * time.Millisecond,
//	    MaxWait:      5 * time.Second,
//	}, func(ctx context.Context) error {
//	    return work(ctx)
//	})
//	if errors.Is(err, memlock.ErrLockTimeout) { /* contention */ }
//
// Locks exclude each other only through the store: there is no in-process
// mutex, no fairness among waiters and no ownership check on release.
package memlock
