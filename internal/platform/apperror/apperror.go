// Package apperror defines the error taxonomy shared by every handler and the
// echo error handler that renders it as the {status, message} envelope.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Each kind maps to exactly one HTTP status.
type Kind string

const (
	KindValidation            Kind = "ValidationError"
	KindDuplicateEmail        Kind = "DuplicateEmail"
	KindMissingCredentials    Kind = "MissingCredentials"
	KindInvalidCredentials    Kind = "InvalidCredentials"
	KindUnauthenticated       Kind = "Unauthenticated"
	KindStaleSession          Kind = "StaleSession"
	KindForbidden             Kind = "Forbidden"
	KindUserNotFound          Kind = "UserNotFound"
	KindNotFound              Kind = "NotFound"
	KindInvalidOrExpiredToken Kind = "InvalidOrExpiredToken"
	KindEmailDispatchFailed   Kind = "EmailDispatchFailed"
	KindTooManyRequests       Kind = "TooManyRequests"
	KindUpstream              Kind = "Upstream"
	KindTimeout               Kind = "Timeout"
	KindUnexpected            Kind = "Unexpected"
)

var kindStatus = map[Kind]int{
	KindValidation:            http.StatusBadRequest,
	KindMissingCredentials:    http.StatusBadRequest,
	KindInvalidOrExpiredToken: http.StatusBadRequest,
	KindInvalidCredentials:    http.StatusUnauthorized,
	KindUnauthenticated:       http.StatusUnauthorized,
	KindStaleSession:          http.StatusUnauthorized,
	KindForbidden:             http.StatusForbidden,
	KindUserNotFound:          http.StatusNotFound,
	KindNotFound:              http.StatusNotFound,
	KindDuplicateEmail:        http.StatusConflict,
	KindTooManyRequests:       http.StatusTooManyRequests,
	KindEmailDispatchFailed:   http.StatusInternalServerError,
	KindUnexpected:            http.StatusInternalServerError,
	KindUpstream:              http.StatusBadGateway,
	KindTimeout:               http.StatusGatewayTimeout,
}

// GenericMessage is the only message ever rendered for Unexpected failures.
const GenericMessage = "Something went very wrong!"

// Error is a classified application error. Message is safe to show to the
// client; Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if code, ok := kindStatus[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message written to the response body.
func (e *Error) PublicMessage() string {
	if e.Kind == KindUnexpected || e.Message == "" {
		return GenericMessage
	}
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Unexpected wraps a collaborator failure. The cause never reaches the client.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: GenericMessage, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// StatusText returns "fail" for client errors and "error" for server errors.
func StatusText(code int) string {
	if code >= 400 && code < 500 {
		return "fail"
	}
	return "error"
}
