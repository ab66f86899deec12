package apperr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds. Every error that reaches the HTTP layer should be marked with
// one of these so it can be mapped to a status code.
var (
	ErrBadInput       = errors.New("bad_input")
	ErrNotAuthorized  = errors.New("not_authorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrUndefinedState = errors.New("undefined_state")
	ErrNotFound       = errors.New("not_found")
	ErrPldInvalid     = errors.New("pld_invalid")
)

var kinds = []error{
	ErrBadInput,
	ErrNotAuthorized,
	ErrForbidden,
	ErrConflict,
	ErrUndefinedState,
	ErrNotFound,
	ErrPldInvalid,
}

func BadInput(format string, args ...any) error {
	return newf(ErrBadInput, format, args...)
}

func NotAuthorized(format string, args ...any) error {
	return newf(ErrNotAuthorized, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newf(ErrForbidden, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(ErrConflict, format, args...)
}

func UndefinedState(format string, args ...any) error {
	return newf(ErrUndefinedState, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func PldInvalid(format string, args ...any) error {
	return newf(ErrPldInvalid, format, args...)
}

// Mark tags an existing error with kind. The original message is kept as the
// client hint.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WithHint(err, err.Error()), kind)
}

// Wrap annotates err with msg and tags it with kind.
func Wrap(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)
	return errors.Mark(errors.WithHint(wrapped, msg), kind)
}

// Is reports whether err carries the given kind or sentinel anywhere in its
// chain, including marks.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// KindOf returns the first kind err is marked with, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message returns the client facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if hint := errors.FlattenHints(err); hint != "" {
		return hint
	}
	return err.Error()
}

func newf(kind error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.Mark(errors.WithHint(errors.New(msg), msg), kind)
}
