// Package health classifies every task in the engine process.
//
// # States
//
// Tasks set one of four explicit states. FROZEN is never set; it is
// derived when a task that last said PROCESSING has shown no activity for
// longer than the staleness window.
//
//	                 SetState                  Classify
//	┌────────────┐ ───────────> ┌──────────┐ ───────────> WAITING | PROCESSING
//	│   task     │              │ Tracker  │              PAUSED  | BROKEN
//	└────────────┘ ───────────> └──────────┘              FROZEN (derived)
//	                 Heartbeat       │
//	                                 └── heartbeat.Registry (beat ages)
//
// A WAITING task is healthy no matter how long it waits. Wait and
// WaitUntil mark the task WAITING, keep beating while they sleep, and put
// the previous state back when they return.
//
// # Usage
//
//	tracker := health.NewTracker(health.DefaultConfig(), reg, logger)
//	tracker.Register("transport", "transport")
//
//	out, err := health.Wait(ctx, tracker, sig, "transport", 5*time.Second, time.Second)
//	if out == health.Cancelled {
//	    // shutdown requested
//	}
//
//	health.Render(os.Stdout, tracker.Snapshot(), time.Now())
package health
