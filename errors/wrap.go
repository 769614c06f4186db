package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds context to err and returns nil for a nil err. A coded error
// keeps its code, category and labels under the new message. Context
// errors become TIMEOUT or CANCELED; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	if inner := find(err); inner != nil {
		rec := inner.rec
		rec.Message = message
		rec.Metadata = inner.Metadata()
		wrapped := &Error{rec: rec, cause: err}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeCanceled
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// find returns the first *Error in err's chain.
func find(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return nil
}

// AsCoded returns the first *Error in the chain, or nil.
func AsCoded(err error) CodedError {
	if coded := find(err); coded != nil {
		return coded
	}
	return nil
}

// Is reports whether the first *Error in the chain has code.
func Is(err error, code ErrorCode) bool {
	coded := find(err)
	return coded != nil && coded.rec.Code == code
}

// Code returns the code of the first *Error in the chain, or "". CodeOf
// also understands typed errors from other packages.
func Code(err error) ErrorCode {
	if coded := find(err); coded != nil {
		return coded.rec.Code
	}
	return ""
}

// CodeOf returns the code of the outermost error in the chain that has a
// Code method, or "".
func CodeOf(err error) ErrorCode {
	for ; err != nil; err = errors.Unwrap(err) {
		if c, ok := err.(interface{ Code() ErrorCode }); ok {
			return c.Code()
		}
	}
	return ""
}

// Category returns the category of the first *Error in the chain, or "".
func Category(err error) ErrorCategory {
	if coded := find(err); coded != nil {
		return coded.rec.Category
	}
	return ""
}

func IsCategory(err error, category ErrorCategory) bool {
	return Category(err) == category && category != ""
}

// IsRetryable reports whether the first *Error in the chain allows a retry.
// Plain errors are never retried.
func IsRetryable(err error) bool {
	coded := find(err)
	return coded != nil && coded.Retryable()
}

func IsTransient(err error) bool { return IsCategory(err, CategoryTransient) }
func IsPermanent(err error) bool { return IsCategory(err, CategoryPermanent) }
func IsResource(err error) bool  { return IsCategory(err, CategoryResource) }
func IsInternal(err error) bool  { return IsCategory(err, CategoryInternal) }

// GetMetadata returns the labels of the first *Error in the chain.
func GetMetadata(err error) map[string]string {
	if coded := find(err); coded != nil {
		return coded.Metadata()
	}
	return nil
}

// Cause returns the innermost error of the chain.
func Cause(err error) error {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines errors; it returns nil when all are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic turns a recovered value into a PANIC error, or nil.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprint(v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}

// Summary renders err as one "CODE: message" line for alerts. The
// outermost coded error in the chain wins; uncoded errors are INTERNAL.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if coded, ok := e.(*Error); ok {
			return fmt.Sprintf("%s: %s", coded.rec.Code, coded.rec.Message)
		}
		if c, ok := e.(interface{ Code() ErrorCode }); ok {
			return fmt.Sprintf("%s: %s", c.Code(), e.Error())
		}
	}
	return fmt.Sprintf("%s: %s", ErrCodeInternal, err.Error())
}
