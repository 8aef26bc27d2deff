package errors

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
)

const (
	detailPanic = "panic"
	detailStack = "stack_trace"
)

// RecoverPanic turns a value returned by recover() into a fatal ErrInternal.
// The stack of the panicking goroutine is kept in the details so that it can
// be logged once, at the place the failure is settled.
func RecoverPanic(r any) error {
	if r == nil {
		return nil
	}

	var cause error
	switch v := r.(type) {
	case error:
		cause = fmt.Errorf("panic: %w", v)
	case string:
		cause = fmt.Errorf("panic: %s", v)
	default:
		cause = fmt.Errorf("panic: %v", v)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail(detailPanic, true).
		WithDetail(detailStack, string(debug.Stack())).
		AsFatal()
}

// IsPanic reports whether err was produced by RecoverPanic.
func IsPanic(err error) bool {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return false
	}
	p, _ := appErr.Details[detailPanic].(bool)
	return p
}

// PanicStack returns the captured stack trace, or "" for ordinary errors.
func PanicStack(err error) string {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return ""
	}
	s, _ := appErr.Details[detailStack].(string)
	return s
}
