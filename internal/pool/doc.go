// Package pool manages the bounded set of local sandboxes.
//
// A Manager hands out running dev servers keyed by owner and branch. It
// keeps at most MaxSandboxes of them, evicting the least recently used one
// when a new key needs room, and purges entries whose process has died the
// next time it takes the registry lock.
//
//	mgr := pool.New(reg, sup, pool.WithConfig(cfg.Pool), pool.WithAudit(auditLog))
//	res := mgr.Start(ctx, pool.Key{OwnerID: "alice", BranchID: "main"})
//	if res.Status == pool.StatusRunning {
//		// dev server on 127.0.0.1:res.Port
//	}
//
// # Lifecycle
//
// Entries move through starting, running and stopping before they are
// removed. A running entry whose process exits is removed by the exit
// callback or, for processes spawned by another invocation, lazily by the
// next Start or Reconcile. A starting entry that never answers its
// readiness probe is stopped and removed.
//
// # Concurrency
//
// Concurrent Start calls for one key share a single execution and receive
// the same Result. Different keys start concurrently: only registry
// mutation is serialized, and readiness polling happens outside the lock.
package pool
