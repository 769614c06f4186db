// Package bus carries alerts and heartbeat mirrors out of the engine.
//
// # Implementations
//
//   - MemoryBus: in-process fan-out, used by tests and single-binary runs
//   - NATSBus: NATS transport so a separate status view can follow an account
//
// # Subjects
//
// Subjects are dot-separated tokens. Subscriptions accept the NATS
// wildcards on both backends:
//
//	alerts.<account>              one alert per BROKEN run or lock timeout
//	heartbeat.<account>.<task>    periodic task liveness and health state
//
//	sub, _ := b.Subscribe("heartbeat.alice.*")
//	for msg := range sub.Messages() {
//	    // decode heartbeat.Heartbeat
//	}
//
// Free-form values go through Token before being used as a subject token.
//
// Delivery is best effort. A subscriber that falls behind its buffer
// misses messages rather than blocking publishers.
package bus
