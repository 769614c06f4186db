package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, the game server briefly unavailable.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, a rejected shipment, insufficient stock.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates a shared resource is busy or exhausted.
	// Examples: ship pool lock held elsewhere, no free vessels.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or terminal run states.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the transport engine.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Game server temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue
	ErrCodeRetryLater  ErrorCode = "RETRY_LATER" // Server asked us to come back later

	// Permanent errors
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"         // Malformed or invalid input
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"             // City or task does not exist
	ErrCodeInsufficient  ErrorCode = "INSUFFICIENT_RESOURCE" // Suppliers cannot cover the request
	ErrCodeRejected      ErrorCode = "TRANSPORT_REJECTED"    // Shipping service refused the shipment
	ErrCodePlanDiscarded ErrorCode = "PLAN_DISCARDED"        // Plan was edited or cancelled at review
	ErrCodeCanceled      ErrorCode = "CANCELED"              // Operation was canceled by the caller
	ErrCodeShutdown      ErrorCode = "SHUTDOWN"              // Shutdown signal observed

	// Resource errors
	ErrCodeLockTimeout  ErrorCode = "LOCK_TIMEOUT"  // Named lock busy beyond timeout
	ErrCodeNoVessels    ErrorCode = "NO_VESSELS"    // No free vessels within the wait bound
	ErrCodeResourceBusy ErrorCode = "RESOURCE_BUSY" // Resource is busy

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
	ErrCodeBroken   ErrorCode = "BROKEN"   // Execution run escalated to BROKEN
	ErrCodeFrozen   ErrorCode = "FROZEN"   // Task silent past the staleness window
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr, ErrCodeRetryLater:
		return CategoryTransient

	case ErrCodeInvalidInput, ErrCodeNotFound, ErrCodeInsufficient, ErrCodeRejected,
		ErrCodePlanDiscarded, ErrCodeCanceled, ErrCodeShutdown:
		return CategoryPermanent

	case ErrCodeLockTimeout, ErrCodeNoVessels, ErrCodeResourceBusy:
		return CategoryResource

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:       "operation timed out",
	ErrCodeUnavailable:   "game server temporarily unavailable",
	ErrCodeNetworkErr:    "network connectivity error",
	ErrCodeRetryLater:    "server requested retry later",
	ErrCodeInvalidInput:  "invalid input provided",
	ErrCodeNotFound:      "not found",
	ErrCodeInsufficient:  "insufficient supplier stock",
	ErrCodeRejected:      "shipment rejected",
	ErrCodePlanDiscarded: "plan discarded",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeShutdown:      "shutdown in progress",
	ErrCodeLockTimeout:   "lock acquisition timed out",
	ErrCodeNoVessels:     "no free vessels",
	ErrCodeResourceBusy:  "resource is busy",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "recovered from panic",
	ErrCodeBroken:        "execution broken",
	ErrCodeFrozen:        "task frozen",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
