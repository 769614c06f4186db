// Package shutdown stops an account's tasks according to their health.
//
// # Overview
//
// A Manager moves the process through three phases:
//
//	Running ──Shutdown()──> ShuttingDown ──all tasks handled──> Terminated
//
// Entering ShuttingDown sets the Signal. Waits that poll the signal return
// at their next safe boundary, so an in-flight dispatch is never cut off.
// Each registered task is then handled concurrently by its health state:
//
//	┌──────────────────────┬───────────────────────────────────────────────┐
//	│ PROCESSING, FROZEN   │ RequestStop, wait up to the grace period,     │
//	│                      │ then Kill                                     │
//	├──────────────────────┼───────────────────────────────────────────────┤
//	│ WAITING, PAUSED,     │ Kill immediately                              │
//	│ BROKEN               │                                               │
//	└──────────────────────┴───────────────────────────────────────────────┘
//
// # Usage
//
//	mgr := shutdown.NewManager(shutdown.DefaultConfig(), tracker, logger)
//	mgr.HandleSignals() // SIGTERM, SIGINT
//
//	task := shutdown.GoFunc(ctx, "transport", func(ctx context.Context) error {
//	    return exec.Run(ctx, plan)
//	})
//	mgr.Register(task)
//
//	// Normal return and panics both end in Shutdown.
//	err := mgr.Guard(func() error {
//	    <-task.Done()
//	    return task.Err()
//	})
//
// Shutdown runs exactly once. Calling it again, from a signal handler or
// from Guard, waits for the first run and returns its Result.
package shutdown
