package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// ============================================================================
// 1. Creation and categories
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         ErrorCode
		message      string
		wantCategory ErrorCategory
	}{
		{"timeout", ErrCodeTimeout, "operation timed out", CategoryTransient},
		{"unavailable", ErrCodeUnavailable, "server busy", CategoryTransient},
		{"insufficient", ErrCodeInsufficient, "short 100 wine", CategoryPermanent},
		{"rejected", ErrCodeRejected, "port closed", CategoryPermanent},
		{"lock_timeout", ErrCodeLockTimeout, "pool busy", CategoryResource},
		{"no_vessels", ErrCodeNoVessels, "no ships", CategoryResource},
		{"broken", ErrCodeBroken, "gave up", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Error() != tt.message {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.message)
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeNotFound, "city %s not found", "Ithaca")
	if err.Error() != "city Ithaca not found" {
		t.Errorf("Error() = %v", err.Error())
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(ErrCodeLockTimeout, WithAccount("alice"))
	if err.Error() != ErrCodeLockTimeout.Description() {
		t.Errorf("Error() = %v, want %v", err.Error(), ErrCodeLockTimeout.Description())
	}
	if err.Account() != "alice" {
		t.Errorf("Account() = %v, want alice", err.Account())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeUnavailable, true},
		{ErrCodeNetworkErr, true},
		{ErrCodeNoVessels, true},
		{ErrCodeRejected, false},
		{ErrCodeInvalidInput, false},
		{ErrCodeBroken, false},
		{ErrorCode("SOMETHING_ELSE"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
			if got := tt.code.DefaultRetryable(); got != tt.want {
				t.Errorf("DefaultRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := Unavailable("maintenance", WithRetryable(false))
	if err.Retryable() {
		t.Error("explicit override should win over category")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable should honor override")
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(ErrCodeRejected, "no", WithMetadata("city", "Sparta"))
	md := err.Metadata()
	md["city"] = "Athens"
	if got := err.Metadata()["city"]; got != "Sparta" {
		t.Errorf("metadata mutated through copy: %v", got)
	}
	if len(New(ErrCodeRejected, "no").Metadata()) != 0 {
		t.Error("empty metadata should be empty map")
	}
}

// ============================================================================
// 2. Wrapping
// ============================================================================

func TestWrapPreservesCode(t *testing.T) {
	inner := Rejected("port blockaded", WithAccount("bob"), WithTaskID("t1"))
	wrapped := Wrap(inner, "dispatching shipment 2")

	if wrapped.Code() != ErrCodeRejected {
		t.Errorf("Code() = %v, want %v", wrapped.Code(), ErrCodeRejected)
	}
	if wrapped.Account() != "bob" || wrapped.TaskID() != "t1" {
		t.Errorf("context lost: account=%q task=%q", wrapped.Account(), wrapped.TaskID())
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped should unwrap to inner")
	}
	want := "dispatching shipment 2: port blockaded"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestWrapPlainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"wrapped_deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(tt.err, "ctx").Code(); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if WrapWithCode(nil, ErrCodeInternal, "x") != nil {
		t.Error("WrapWithCode(nil) should be nil")
	}
}

func TestWrapWithCode(t *testing.T) {
	err := WrapWithCode(errors.New("socket closed"), ErrCodeNetworkErr, "dispatch")
	if !IsTransient(err) {
		t.Error("network error should be transient")
	}
	if Cause(err).Error() != "socket closed" {
		t.Errorf("Cause() = %v", Cause(err))
	}
}

// ============================================================================
// 3. Inspection helpers
// ============================================================================

func TestInspection(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeNoVessels, "fleet at sea", WithMetadata("pool", "ship-pool:merchant")))

	if !Is(err, ErrCodeNoVessels) {
		t.Error("Is should find code through fmt wrapping")
	}
	if Is(err, ErrCodeRejected) {
		t.Error("Is matched wrong code")
	}
	if !IsResource(err) || IsPermanent(err) || IsInternal(err) {
		t.Error("category helpers disagree")
	}
	if Code(err) != ErrCodeNoVessels {
		t.Errorf("Code() = %v", Code(err))
	}
	if Category(err) != CategoryResource {
		t.Errorf("Category() = %v", Category(err))
	}
	if GetMetadata(err)["pool"] != "ship-pool:merchant" {
		t.Errorf("GetMetadata() = %v", GetMetadata(err))
	}
	if AsCoded(err) == nil {
		t.Error("AsCoded should find error")
	}

	plain := errors.New("plain")
	if Code(plain) != "" || Category(plain) != "" || GetMetadata(plain) != nil || AsCoded(plain) != nil {
		t.Error("plain errors should yield zero values")
	}
	if IsRetryable(plain) {
		t.Error("plain errors are not retryable")
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", lockTimeoutLike(), "LOCK_TIMEOUT: pool busy"},
		{"wrapped_cause_hidden", Wrap(errors.New("eof"), "dispatch"), "INTERNAL: dispatch"},
		{"plain", errors.New("boom"), "INTERNAL: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.err); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

type typedErr struct{}

func (typedErr) Error() string   { return "lock busy" }
func (typedErr) Code() ErrorCode { return ErrCodeLockTimeout }

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("acquire: %w", typedErr{})); got != ErrCodeLockTimeout {
		t.Errorf("CodeOf(typed) = %v", got)
	}
	if got := CodeOf(Rejected("x")); got != ErrCodeRejected {
		t.Errorf("CodeOf(Error) = %v", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %v", got)
	}
	if got := Summary(typedErr{}); got != "LOCK_TIMEOUT: lock busy" {
		t.Errorf("Summary(typed) = %q", got)
	}
}

func lockTimeoutLike() error {
	return New(ErrCodeLockTimeout, "pool busy")
}

func TestBroken(t *testing.T) {
	cause := Rejected("nope")
	err := Broken("t9", cause)
	if err.Code() != ErrCodeBroken {
		t.Errorf("Code() = %v", err.Code())
	}
	if err.TaskID() != "t9" {
		t.Errorf("TaskID() = %v", err.TaskID())
	}
	if !errors.Is(err, cause) {
		t.Error("Broken should wrap its cause")
	}
	if err.Retryable() {
		t.Error("Broken must not be retryable")
	}
}

func TestRecoverPanic(t *testing.T) {
	if RecoverPanic(nil) != nil {
		t.Error("nil panic should give nil")
	}
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"error", errors.New("bad"), "bad"},
		{"string", "oops", "oops"},
		{"int", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RecoverPanic(tt.value)
			if err.Code() != ErrCodePanic {
				t.Errorf("Code() = %v", err.Code())
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.want)
			}
		})
	}
}

// ============================================================================
// 4. JSON
// ============================================================================

func TestJSONRoundtrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := New(ErrCodeRejected, "harbour full",
		WithAccount("carol"),
		WithTaskID("task-1"),
		WithMetadata("destination", "Rhodes"),
		WithTimestamp(ts),
		WithCause(errors.New("http 409")),
	)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Error
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Code() != orig.Code() || got.Category() != orig.Category() {
		t.Errorf("code/category = %v/%v", got.Code(), got.Category())
	}
	if got.Account() != "carol" || got.TaskID() != "task-1" {
		t.Errorf("account/task = %v/%v", got.Account(), got.TaskID())
	}
	if !got.Timestamp().Equal(ts) {
		t.Errorf("Timestamp() = %v, want %v", got.Timestamp(), ts)
	}
	if got.Error() != orig.Error() {
		t.Errorf("Error() = %q, want %q", got.Error(), orig.Error())
	}
	if got.Retryable() {
		t.Error("Retryable should survive roundtrip as false")
	}
}

func TestCodeDescriptions(t *testing.T) {
	if ErrorCode("NOPE").Description() != "unknown error" {
		t.Error("unknown code should have generic description")
	}
	for code := range codeDescriptions {
		if code.String() == "" {
			t.Errorf("empty code string for %v", code)
		}
	}
}
