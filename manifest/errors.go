package manifest

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed         = errors.New("malformed manifest")
	ErrUnsupportedSchema = errors.New("unsupported manifest schema")
)

// Error describes why a document was rejected. It matches ErrMalformed or
// ErrUnsupportedSchema with errors.Is.
type Error struct {
	Kind   error
	Doc    string
	Field  string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Doc != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Doc)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func malformed(doc, field, reason string) *Error {
	return &Error{Kind: ErrMalformed, Doc: doc, Field: field, Reason: reason}
}
