// Package executor dispatches an accepted plan, one shipment at a time, in
// the plan's closest-first order.
//
// # Per-shipment loop
//
//	┌──────────────┐  pool empty   ┌────────────────────────┐
//	│ check pool   │──────────────>│ wait (heartbeat-aware) │── bound passed ──> NO_VESSELS
//	└──────┬───────┘               └───────────┬────────────┘
//	       │ free > 0                          │ free > 0
//	       v                                   v
//	┌──────────────────────┐   busy past timeout
//	│ lock ship-pool:<type>│───────────────────────────────────> LOCK_TIMEOUT
//	└──────┬───────────────┘
//	       │ re-read pool; empty again -> back to wait
//	       v
//	┌──────────────────────┐
//	│ dispatch load        │── transient ──> retry budget, backoff
//	│ (min(free, needed))  │── permanent ──> BROKEN
//	└──────┬───────────────┘
//	       │ vessels left in shipment -> next load
//	       v
//	   next shipment
//
// NO_VESSELS and LOCK_TIMEOUT consume the same RetryBudget as transient
// dispatch failures. When the budget runs out the run stops, the task is
// marked BROKEN, an alert is raised and Run returns a *BrokenError.
// Shipments already delivered are never rolled back.
//
// # Cancellation
//
// The shutdown signal is checked before each shipment, before each load
// and at every poll of a wait. A dispatch call in flight always runs to
// completion. A cancelled run reports StateCancelled and no error.
//
// # Usage
//
//	ex, err := executor.New(executor.ConfigFrom(cfg, "consolidate"), lm, pool, svc,
//	    executor.WithSignal(mgr.Signal()),
//	    executor.WithTracker(tracker),
//	    executor.WithAlerts(reporter),
//	    executor.WithLogger(logger),
//	)
//	report, err := ex.Run(ctx, plan)
//	fmt.Println(report)
package executor
