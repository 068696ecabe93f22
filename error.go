package bpush

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrCommitted is returned when writing to, or committing, a response that was already committed.
	ErrCommitted = errors.New("bpush: response already committed")
	// ErrInvalidState is returned when response parts are written out of order.
	ErrInvalidState = errors.New("bpush: response written out of order")
	// ErrChunkedUnsupported is returned when a body is opened without a declared length.
	ErrChunkedUnsupported = errors.New("bpush: chunked response bodies are not supported")
	// ErrMultipartUnsupported is reported to rest listeners that receive multipart parts.
	ErrMultipartUnsupported = errors.New("bpush: multipart bodies are not supported by rest listeners")
	// ErrProtocolViolation is logged when the transport delivers events out of bracket order.
	ErrProtocolViolation = errors.New("bpush: protocol violation")
	// ErrNotBorrowed is returned when releasing an instance that the pool did not lend out.
	ErrNotBorrowed = errors.New("bpush: instance was not borrowed from this pool")
	// ErrNoListener is reported when a connection has no bound listener to serve a request.
	ErrNoListener = errors.New("bpush: no listener bound to connection")
	// ErrNotCommitted is logged when a request finished without its response being committed.
	ErrNotCommitted = errors.New("bpush: request finished without a committed response")
)

// Code is an error code that mirrors the http status codes. Listeners can return an [*Error] to pick the
// status of the best-effort response that is written when a request finishes without a committed response.
type Code int

const (
	CodeUnknown               Code = 0
	CodeBadRequest            Code = http.StatusBadRequest            // RFC 9110, 15.5.1
	CodeUnauthorized          Code = http.StatusUnauthorized          // RFC 9110, 15.5.2
	CodeForbidden             Code = http.StatusForbidden             // RFC 9110, 15.5.4
	CodeNotFound              Code = http.StatusNotFound              // RFC 9110, 15.5.5
	CodeMethodNotAllowed      Code = http.StatusMethodNotAllowed      // RFC 9110, 15.5.6
	CodeConflict              Code = http.StatusConflict              // RFC 9110, 15.5.10
	CodeRequestEntityTooLarge Code = http.StatusRequestEntityTooLarge // RFC 9110, 15.5.14
	CodeUnsupportedMediaType  Code = http.StatusUnsupportedMediaType  // RFC 9110, 15.5.16
	CodeUnprocessableEntity   Code = http.StatusUnprocessableEntity   // RFC 9110, 15.5.21
	CodeTooManyRequests       Code = http.StatusTooManyRequests       // RFC 6585, 4

	CodeInternalServerError Code = http.StatusInternalServerError // RFC 9110, 15.6.1
	CodeNotImplemented      Code = http.StatusNotImplemented      // RFC 9110, 15.6.2
	CodeServiceUnavailable  Code = http.StatusServiceUnavailable  // RFC 9110, 15.6.4
)

// Error describes an http error.
type Error struct {
	code Code
	err  error
}

// NewError inits a new error given the error code.
func NewError(c Code, underlying error) *Error {
	return &Error{c, underlying}
}

func (e *Error) Code() Code    { return e.code }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Error() string {
	status := http.StatusText(int(e.Code()))
	if status == "" {
		status = "Unknown"
	}

	return fmt.Sprintf("%s: %s", status, e.err.Error())
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Code()
	}

	return CodeUnknown
}

// statusOf picks the status for a best-effort error response.
func statusOf(err error) int {
	if code := CodeOf(err); code >= 400 && code < 600 {
		return int(code)
	}

	return http.StatusInternalServerError
}
