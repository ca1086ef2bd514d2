package cdn

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by the store matches exactly one of them
// with errors.Is.
var (
	ErrAlreadyExists          = errors.New("cdn: already exists")
	ErrRecipeDoesntExist      = errors.New("cdn: recipe doesn't exist")
	ErrImageDoesntExist       = errors.New("cdn: image doesn't exist")
	ErrUnsupportedImageFormat = errors.New("cdn: unsupported image format")
	ErrInvalidName            = errors.New("cdn: invalid name")
	ErrInternal               = errors.New("cdn: internal error")
)

// ErrClosed is the cause attached to internal errors after Close.
var ErrClosed = errors.New("cdn: store is closed")

var kinds = []error{
	ErrAlreadyExists,
	ErrRecipeDoesntExist,
	ErrImageDoesntExist,
	ErrUnsupportedImageFormat,
	ErrInvalidName,
	ErrInternal,
}

// Error describes a failed store operation.
// The cause may contain filesystem paths and must not be shown to clients.
type Error struct {
	Op     string
	Recipe string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Op)
	}
	if e.Recipe != "" {
		msg = fmt.Sprintf("%s '%s'", msg, e.Recipe)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

func newError(kind error, op, recipe string, cause error) *Error {
	return &Error{
		Op:     op,
		Recipe: recipe,
		Kind:   kind,
		Err:    cause,
	}
}

// KindOf returns the error kind of err, or nil for a nil error.
// Errors that were not produced by the store are reported as ErrInternal.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	var cdnErr *Error
	if errors.As(err, &cdnErr) {
		return cdnErr.Kind
	}

	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return ErrInternal
}

// StatusCode maps err to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case nil:
		return http.StatusOK
	case ErrAlreadyExists:
		return http.StatusConflict
	case ErrRecipeDoesntExist, ErrImageDoesntExist:
		return http.StatusNotFound
	case ErrUnsupportedImageFormat:
		return http.StatusNotImplemented
	case ErrInvalidName:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
