package packer

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies job failures.
type Kind int

const (
	// KindValidation is a request rejected before any file was opened.
	KindValidation Kind = iota + 1
	// KindAdmissionDenied is a request refused by the admission gate. Retryable.
	KindAdmissionDenied
	// KindSourceRead is a job where no source file could be read.
	KindSourceRead
	// KindFatalWrite is a failure writing the archive or a part.
	KindFatalWrite
	// KindTimeout is a job that ran out of time or was cancelled.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAdmissionDenied:
		return "admission denied"
	case KindSourceRead:
		return "source read"
	case KindFatalWrite:
		return "fatal write"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by the engine for every failed job. Reason is a short
// human-readable message; Err, when set, is the underlying cause and is
// meant for logs only.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindAdmissionDenied || e.Kind == KindTimeout
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func deniedError(reason string) *Error {
	return &Error{Kind: KindAdmissionDenied, Reason: reason}
}

// classify turns an error from inside a running job into an *Error.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Reason: "packing took too long", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Reason: "packing was cancelled", Err: err}
	}
	return &Error{Kind: KindFatalWrite, Reason: "could not write the archive", Err: err}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Reason returns a single human-readable reason for err, suitable for
// showing to the end user.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}
