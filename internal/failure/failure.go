// Package failure classifies pipeline errors into the kinds a caller can act on.
package failure

import (
	"errors"
	"net/http"

	"github.com/sells-group/docparse/internal/model"
)

// Kind tags a pipeline error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindFetch             Kind = "fetch"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindConversion        Kind = "conversion"
	KindExtraction        Kind = "extraction"
	KindUnhandled         Kind = "unhandled"
)

// Error is an error tagged with its kind and the stage that raised it.
type Error struct {
	Kind  Kind
	Stage model.StageName
	Err   error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with a kind and stage.
func New(kind Kind, stage model.StageName, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnhandled when it carries no tag.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindUnhandled
}

// HTTPStatus maps a kind to the response status class a caller sees.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindUnsupportedFormat:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ClientError reports whether the kind is the caller's fault.
func ClientError(kind Kind) bool {
	s := HTTPStatus(kind)
	return s >= 400 && s < 500
}
