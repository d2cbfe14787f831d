// Package apperr defines the exhaustive error-kind taxonomy shared by the
// judging engine, the store and the HTTP adapter.
package apperr

import "fmt"

// Kind identifies one of the fixed error categories the HTTP adapter maps to
// a status code. Case-level judging failures are never represented as a
// Kind; they live in JobCase.Result instead.
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	InvalidState    Kind = "invalid_state"
	NotFound        Kind = "not_found"
	RateLimit       Kind = "rate_limit"
	External        Kind = "external"
	Internal        Kind = "internal"
)

// Error is the wire-serializable error shape: {code, reason, message}.
type Error struct {
	Code    int    `json:"code"`
	Reason  Kind   `json:"reason"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

var codes = map[Kind]int{
	InvalidArgument: 1,
	InvalidState:    2,
	NotFound:        3,
	RateLimit:       4,
	External:        5,
	Internal:        6,
}

// New constructs an *Error for the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Code:    codes[kind],
		Reason:  kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Status returns the HTTP status this kind maps to.
func (k Kind) Status() int {
	switch k {
	case InvalidArgument, InvalidState, RateLimit:
		return 400
	case NotFound:
		return 404
	case External, Internal:
		return 500
	}
	return 500
}

// As extracts an *Error from err, wrapping unknown errors as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(Internal, "%s", err.Error())
}
