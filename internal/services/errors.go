package services

import (
	"errors"
	"fmt"
)

// Kind is the stable category of a service failure.
type Kind string

const (
	KindNotFound Kind = "NOT_FOUND"
	KindRejected Kind = "REJECTED"
	KindInvalid  Kind = "INVALID"
	KindConflict Kind = "CONFLICT"
	KindInternal Kind = "INTERNAL"

	KindUnauthorized Kind = "UNAUTHORIZED"
)

// Error is returned by every service operation that fails. Reason is safe to show to
// clients; Err, when set, holds the underlying cause for logging.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// internalError wraps an unexpected persistence failure.
func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal error", Err: err}
}

// KindOf returns the category of err, or KindInternal for errors that did not
// originate in this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// ReasonOf returns the client-facing reason for err.
func ReasonOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return "internal error"
}

var (
	ErrReaderNotFound    = newError(KindNotFound, "reader not found")
	ErrPublisherNotFound = newError(KindNotFound, "publisher not found")
	ErrBookNotFound      = newError(KindNotFound, "book not found")
	ErrCopyNotFound      = newError(KindNotFound, "copy not found")
	ErrFineNotFound      = newError(KindNotFound, "fine not found")
	ErrNoOutstandingLoan = newError(KindNotFound, "no outstanding loan for copy")

	ErrOutstandingFines = newError(KindRejected, "outstanding fines")
	ErrCopyUnavailable  = newError(KindRejected, "unavailable")

	ErrInvalidCategory = newError(KindInvalid, "category must be one of student, teacher, external")
	ErrInvalidPrice    = newError(KindInvalid, "price must be between 0 and 99999999")
	ErrInvalidName     = newError(KindInvalid, "name must not be empty")

	ErrDuplicateISBN          = newError(KindConflict, "isbn already exists")
	ErrDuplicatePublisherName = newError(KindConflict, "publisher name already in use")
	ErrReaderHasHistory       = newError(KindConflict, "reader still has borrow records or fines")
	ErrPublisherHasBooks      = newError(KindConflict, "publisher still has books")
	ErrBookHasCopies          = newError(KindConflict, "book still has copies")
	ErrCopyOnLoan             = newError(KindConflict, "copy is on loan")
	ErrCopyHasHistory         = newError(KindConflict, "copy has borrow history")
	ErrCopyNotInLibrary       = newError(KindConflict, "copy is not in the library")

	ErrInvalidCredentials = newError(KindUnauthorized, "invalid username or password")
)
