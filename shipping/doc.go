// Package shipping defines the boundary to the game: the dispatch service
// that moves cargo and the queries that snapshot supplier stock.
//
// Dispatch failures are classified through the errors package. Transient
// wraps UNAVAILABLE (retryable) and Permanent wraps TRANSPORT_REJECTED
// (not retryable). The executor retries the former within its budget and
// escalates the latter at once.
//
// Simulator is a self-contained game used by tests and the examples.
package shipping
