package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// CodedError is what the executor and the alert channel need from an
// error: a code to report, and a category to decide whether to retry.
type CodedError interface {
	error
	Code() ErrorCode
	Category() ErrorCategory
	Retryable() bool
	Metadata() map[string]string
	Unwrap() error
}

// Error is the concrete CodedError. Everything but the cause is kept in a
// record that crosses the alert channel as JSON; the cause crosses as text.
type Error struct {
	rec   record
	cause error
}

// record is the wire form of an Error.
type record struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Retryable *bool             `json:"retryable,omitempty"`
	Account   string            `json:"account,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Time      time.Time         `json:"time"`
}

var (
	_ CodedError       = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

func (e *Error) Error() string {
	if e.cause == nil {
		return e.rec.Message
	}
	return e.rec.Message + ": " + e.cause.Error()
}

func (e *Error) Code() ErrorCode         { return e.rec.Code }
func (e *Error) Category() ErrorCategory { return e.rec.Category }
func (e *Error) Unwrap() error           { return e.cause }

// Message returns the message without the cause chain.
func (e *Error) Message() string { return e.rec.Message }

// Timestamp returns when the error was created.
func (e *Error) Timestamp() time.Time { return e.rec.Time }

// Account returns the owning game account, if set.
func (e *Error) Account() string { return e.rec.Account }

// TaskID returns the related task, if set.
func (e *Error) TaskID() string { return e.rec.TaskID }

// Retryable reports whether the failed operation may succeed if repeated.
// An explicit WithRetryable wins over the category.
func (e *Error) Retryable() bool {
	if e.rec.Retryable != nil {
		return *e.rec.Retryable
	}
	return e.rec.Category.IsRetryable()
}

// Metadata returns a copy of the error's labels.
func (e *Error) Metadata() map[string]string {
	out := make(map[string]string, len(e.rec.Metadata))
	for k, v := range e.rec.Metadata {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the record with the resolved retry flag.
func (e *Error) MarshalJSON() ([]byte, error) {
	rec := e.rec
	retry := e.Retryable()
	rec.Retryable = &retry
	if e.cause != nil {
		rec.Cause = e.cause.Error()
	}
	return json.Marshal(rec)
}

// UnmarshalJSON restores an error sent by MarshalJSON. The cause comes
// back as a plain error carrying the original text.
func (e *Error) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	e.cause = nil
	if rec.Cause != "" {
		e.cause = fmt.Errorf("%s", rec.Cause)
		rec.Cause = ""
	}
	e.rec = rec
	return nil
}

// Option adjusts an Error under construction.
type Option func(*Error)

// WithCategory overrides the code's default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) { e.rec.Category = cat }
}

// WithRetryable pins the retry decision regardless of category.
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.rec.Retryable = &retryable }
}

// WithMetadata adds one label.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.rec.Metadata == nil {
			e.rec.Metadata = make(map[string]string)
		}
		e.rec.Metadata[key] = value
	}
}

func WithAccount(account string) Option {
	return func(e *Error) { e.rec.Account = account }
}

func WithTaskID(id string) Option {
	return func(e *Error) { e.rec.TaskID = id }
}

func WithTimestamp(t time.Time) Option {
	return func(e *Error) { e.rec.Time = t }
}

func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates an error in the code's default category.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{rec: record{
		Code:     code,
		Category: code.DefaultCategory(),
		Message:  message,
		Time:     time.Now(),
	}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error whose message is the code's description.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// Unavailable is a shipping call that may succeed later.
func Unavailable(message string, opts ...Option) *Error {
	return New(ErrCodeUnavailable, message, opts...)
}

// Rejected is a shipment the game refused.
func Rejected(message string, opts ...Option) *Error {
	return New(ErrCodeRejected, message, opts...)
}

func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}

// Broken is the terminal error of a run that could not recover; cause is
// the last failure seen.
func Broken(taskID string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithTaskID(taskID), WithCause(cause)}, opts...)
	return New(ErrCodeBroken, "task "+taskID+" broken", opts...)
}
