// Package errors provides the structured error taxonomy used across
// freightkit. Every failure a caller might need to branch on carries an
// ErrorCode, and every code belongs to a category that decides whether the
// executor may retry it.
//
// # Error Categories
//
//   - Transient: the game server or network hiccuped; retry may succeed
//   - Permanent: the shipment was rejected or the input is wrong
//   - Resource: a ship pool lock is busy or no vessels are free
//   - Internal: bugs, panics and terminal run states such as BROKEN
//
// # Usage
//
//	err := errors.Rejected("harbour full", errors.WithAccount("alice"))
//	wrapped := errors.Wrap(err, "dispatching shipment 3")
//
//	if errors.IsRetryable(wrapped) {
//	    // schedule another attempt
//	}
//
// Alerts use Summary to get a one-line "CODE: message" form:
//
//	line := errors.Summary(err) // "TRANSPORT_REJECTED: harbour full"
//
// All errors marshal to JSON so they can travel on the bus.
package errors
