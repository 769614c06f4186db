// Package review puts a proposed plan in front of the user before any
// cargo moves.
//
//	              ┌──────────┐
//	   plan ─────>│ Proposed │
//	              └────┬─────┘
//	     Accept ┌──────┼───────┐ Cancel
//	            v      │ Edit  v
//	      ┌──────────┐ │  ┌───────────┐
//	      │ Accepted │ │  │ Cancelled │  plan dropped, no side effects
//	      └──────────┘ │  └───────────┘
//	       executor    v
//	              ┌─────────┐
//	              │ Editing │  plan dropped, new planning pass
//	              └─────────┘
//
// Loop drives the gate with a Prompter. Editing always leads to a fresh
// planning pass and therefore a fresh supplier snapshot.
package review
