// Package locks provides named, timeout-bounded mutual exclusion between
// tasks running in one process.
//
// # Model
//
// Each name ("ship-pool:merchant") maps to a one-slot semaphore. Acquire
// waits on that slot, a timer and the caller's context; whichever fires
// first wins.
//
//	task A ──Acquire──▶ [ ship-pool:merchant ] ◀──Acquire── task B
//	                         holder=A                  (blocks, then
//	                         acquired=t0                TimeoutError{Holder: A})
//
// Holder metadata is recorded on grant and cleared on release. It exists
// for diagnostics only; nothing ever force-releases a lock.
//
// # Scoped use
//
// WithLock is the preferred form. It releases on return, on error and when
// the callback panics:
//
//	err := mgr.WithLock(ctx, shipType.PoolName(), taskID, 30*time.Second, func(h *locks.Handle) error {
//	    return dispatch(ctx)
//	})
//
// # Hold warnings
//
// A lock held past Config.HoldWarning is logged once as lock_held. The
// warning never releases the lock.
//
// Locks are process local. The isolation unit is one process per account,
// so there is no cross-process coordination.
package locks
