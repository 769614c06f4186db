// Package splitter converts allocations into vessel-counted shipments.
//
// Cargo of every kind shares vessels: capacity is by total units. For one
// allocation
//
//	total     = sum(resource)
//	full      = total / capacity
//	remainder = total % capacity
//
// and the trailing partial vessel ships only when
//
//	remainder == 0
//	remainder >= minFill * capacity   (default 0.75)
//	the allocation is the last one of the request
//
// Otherwise the remainder is deferred: the shipment carries only its full
// vessels and the held-back units are reported in Result.Deferred, taken
// from the tail of the canonical kind order. The end-of-order exception
// means a request always finishes with a feasible plan.
//
// Example with capacity 500 and a single allocation of 1240 wood:
//
//	2 full vessels (1000) + 1 partial (240) = 3 vessels
//
// The same 1240 on a non-final allocation ships 2 vessels and defers 240.
package splitter
