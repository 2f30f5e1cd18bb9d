// Package errs defines the stable, client-visible error kinds the compute
// core can return, per the error handling design.
package errs

import "fmt"

// Kind identifies one of the stable client-visible error categories.
type Kind string

const (
	// FileOpenError means the loader could not open the file; fatal for
	// that Frame.
	FileOpenError Kind = "FileOpenError"
	// InvalidShape means the image is not 2D/3D/4D; the frame is marked
	// invalid and no further calls succeed.
	InvalidShape Kind = "InvalidShape"
	// OutOfRangeError means z or stokes was out of bounds for a
	// SetImageChannels request; no state change occurs.
	OutOfRangeError Kind = "OutOfRangeError"
	// RegionOutsideImage is not an error when streaming: a partial result
	// with NaN profile/histogram is emitted and progress still reaches 1.0.
	RegionOutsideImage Kind = "RegionOutsideImage"
	// ComputationCancelled is surfaced as cancelled=true; no further
	// callbacks follow.
	ComputationCancelled Kind = "ComputationCancelled"
	// UnsupportedOperation means the loader/format lacks a capability; the
	// caller falls back if possible, else surfaces this.
	UnsupportedOperation Kind = "UnsupportedOperation"
	// InternalError is the catch-all wrapping native/library exceptions.
	InternalError Kind = "InternalError"
)

// Error wraps a Kind with a human-readable message and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, errs.New(errs.OutOfRangeError, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Internal wraps an arbitrary error (e.g. from a loader) as InternalError,
// the catch-all mapping for exceptions crossing a component boundary.
func Internal(message string, cause error) *Error {
	return Wrap(InternalError, message, cause)
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and
// reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
