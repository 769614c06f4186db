// Package heartbeat records per-task liveness and mirrors it onto the bus.
//
// # Overview
//
// Every task in the engine process beats into a shared Registry while it
// works or waits. The health package reads beat ages from the Registry to
// tell a legitimately long wait from a task that has gone silent.
//
// # Architecture
//
//	┌──────────┐ Beat  ┌──────────┐       heartbeat.<account>.<task>       ┌──────────┐
//	│  tasks   │──────>│ Registry │──>Publisher ─────────────────────────> │ Watcher  │
//	└──────────┘       └──────────┘                                        │ (status) │
//	                        │                                              └──────────┘
//	                        └──> health.Tracker (Derive FROZEN)
//
// The Publisher and Watcher are optional. They exist so a separate status
// view can follow an account without sharing the engine's memory.
//
// # Usage
//
//	reg := heartbeat.NewRegistry()
//	reg.Beat("collector")
//
//	pub, _ := heartbeat.NewPublisher(heartbeat.PublisherConfig{
//	    Bus:       msgBus,
//	    Registry:  reg,
//	    Account:   "alice",
//	    Describer: tracker,
//	})
//	pub.Start(ctx)
//	defer pub.Stop()
//
// # Recommendations
//
//   - Set the watcher timeout well above the publish interval
//   - Handle OnSilent callbacks idempotently
package heartbeat
