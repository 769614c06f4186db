// Package planner runs a planning pass for one consolidation request.
//
// A pass takes a single supplier snapshot, works out what to move, and
// turns it into shipments:
//
//	Request ──> ListSuppliers(exclude destination)
//	              │
//	              ├─ Send: amounts as given
//	              ├─ Keep: each supplier offers stock above the reserve
//	              │
//	              ├─ cap by destination free storage
//	              v
//	          allocator.Allocate ──> splitter.SplitAll ──> Plan
//
// The resulting Plan is immutable. Editing a plan means running a new
// pass, which takes a new snapshot.
package planner
