// Package apperr defines the typed error taxonomy shared by every layer of
// the try-on pipeline. Each stage raises one of these kinds instead of an
// ambiguous fault, so the HTTP boundary can map errors to status codes
// without re-classifying them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status-code mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimit
	KindExternalService
	KindAIService
)

// Error carries a user-facing message, an optional machine-usable detail
// list, and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	case KindAIService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation returns a 400-class error for malformed or missing input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Authentication returns a 401-class error for identity/lookup failures.
func Authentication(message string, err error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Err: err}
}

// Authorization returns a 403-class error for ownership violations.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns a 404-class error for unknown resource ids.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// RateLimit returns a 429-class error for quota exhaustion.
func RateLimit(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

// ExternalService returns a 502-class error for durable-storage failures.
func ExternalService(message string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err}
}

// AIService returns a 503-class error for generation-backend failures,
// distinguishing "the backend is down" from "our bug".
func AIService(message string, details []string, err error) *Error {
	return &Error{Kind: KindAIService, Message: message, Details: details, Err: err}
}

// Internal wraps an unclassified fault as a 500-class error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// From returns err as an *Error, wrapping unclassified faults as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
