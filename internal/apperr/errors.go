// Package apperr defines the typed errors returned by the attendance engine.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindState        Kind = "state"
	KindNotFound     Kind = "not_found"
	KindVerification Kind = "verification"
	KindDuplicate    Kind = "duplicate"
	KindInternal     Kind = "internal"
)

// Error is a structured domain error. Two errors match under errors.Is when
// their codes are equal, so sentinels can be decorated with details freely.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Kind, e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of e with an extra detail attached.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of e wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Msg returns a copy of e with a more specific message.
func (e *Error) Msg(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newErr(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput       = newErr(KindValidation, "invalid_input", "invalid input")
	ErrFutureSession      = newErr(KindValidation, "future_session", "cannot file an excuse for a future session")
	ErrNotEnrolled        = newErr(KindValidation, "not_enrolled", "student is not enrolled in the course")
	ErrScheduleConflict   = newErr(KindConflict, "schedule_conflict", "session overlaps an existing session")
	ErrAlreadyStarted     = newErr(KindState, "already_started", "attendance already started")
	ErrAlreadyClosed      = newErr(KindState, "already_closed", "attendance already closed")
	ErrNotStarted         = newErr(KindState, "not_started", "attendance not started")
	ErrSessionNotOpen     = newErr(KindState, "session_not_open", "session is not open for check-in")
	ErrAlreadyReviewed    = newErr(KindState, "already_reviewed", "excuse already reviewed")
	ErrNotFound           = newErr(KindNotFound, "not_found", "not found")
	ErrNoReference        = newErr(KindNotFound, "no_reference", "no registered face for this person")
	ErrVerificationFailed = newErr(KindVerification, "verification_failed", "face does not match the registered reference")
	ErrDuplicateExcuse    = newErr(KindDuplicate, "duplicate_excuse", "an excuse already exists for this session")
	ErrInvariant          = newErr(KindInternal, "invariant_violation", "store invariant violated")
)

// Invalid builds a validation error with a specific message.
func Invalid(format string, args ...any) *Error {
	return ErrInvalidInput.Msg(format, args...)
}

// NotFound builds a not-found error naming the missing entity.
func NotFound(entity, id string) *Error {
	return ErrNotFound.Msg("%s not found", entity).With("id", id)
}

// Invariant builds an internal invariant violation.
func Invariant(format string, args ...any) *Error {
	return ErrInvariant.Msg(format, args...)
}

// KindOf classifies err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
