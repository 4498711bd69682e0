package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind enumerates the failures of the link store.
type ErrorKind int

const (
	KindLinkConflict ErrorKind = iota + 1
	KindRandomIDExhausted
	KindStorage
	KindLinkEmpty
	KindLinkExceedsMaxLength
	KindCustomIDExceedsMaxLength
)

func (k ErrorKind) String() string {
	switch k {
	case KindLinkConflict:
		return "link conflict"
	case KindRandomIDExhausted:
		return "random id exhausted"
	case KindStorage:
		return "storage error"
	case KindLinkEmpty:
		return "link empty"
	case KindLinkExceedsMaxLength:
		return "link exceeds max length"
	case KindCustomIDExceedsMaxLength:
		return "custom id exceeds max length"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by the link store. Only KindStorage carries
// an underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrLinkConflict             = &Error{Kind: KindLinkConflict}
	ErrRandomIDExhausted        = &Error{Kind: KindRandomIDExhausted}
	ErrStorage                  = &Error{Kind: KindStorage}
	ErrLinkEmpty                = &Error{Kind: KindLinkEmpty}
	ErrLinkExceedsMaxLength     = &Error{Kind: KindLinkExceedsMaxLength}
	ErrCustomIDExceedsMaxLength = &Error{Kind: KindCustomIDExceedsMaxLength}
)

// NewStorageError wraps an engine failure.
func NewStorageError(err error) error {
	return &Error{Kind: KindStorage, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not a store error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusCode maps an error to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindLinkConflict:
		return http.StatusConflict
	case KindLinkEmpty, KindLinkExceedsMaxLength, KindCustomIDExceedsMaxLength:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
