// Package fleet tracks the vessels available to each ship type.
//
// The executor reads Free before taking the pool lock and again while
// holding it, because vessels counted outside the lock may be gone by the
// time it is granted. MemoryPool refuses Take and Return unless the pool
// lock ("ship-pool:<type>") is held, so pool counts only change under it.
//
//	executor ──Free──> Pool
//	    │
//	    └── locks.WithLock("ship-pool:merchant") ──> Take ──> dispatch
//	                                                   │
//	                       ReturnAfter(travel) <───────┘
package fleet
