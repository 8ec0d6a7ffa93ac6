// Package apperrors implements the platform's error taxonomy: every error
// that crosses a service boundary carries a Kind, an HTTP status, a message,
// and an optional detail map, so the transport layer never has to guess how
// to render a failure.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of failure, independent of its message.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "notFound"
	KindConflict              Kind = "conflict"
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindRateLimited           Kind = "rateLimited"
	KindDependencyUnavailable Kind = "dependencyUnavailable"
	KindTimeout               Kind = "timeout"
	KindCancelled             Kind = "cancelled"
	KindModelUnhealthy        Kind = "modelUnhealthy"
	KindQueueFull             Kind = "queueFull"
	KindInternal              Kind = "internal"
)

var httpStatus = map[Kind]int{
	KindValidation:            http.StatusBadRequest,
	KindNotFound:              http.StatusNotFound,
	KindConflict:              http.StatusConflict,
	KindUnauthorized:          http.StatusUnauthorized,
	KindForbidden:             http.StatusForbidden,
	KindRateLimited:           http.StatusTooManyRequests,
	KindDependencyUnavailable: http.StatusServiceUnavailable,
	KindTimeout:               http.StatusGatewayTimeout,
	KindCancelled:             http.StatusRequestTimeout,
	KindModelUnhealthy:        http.StatusServiceUnavailable,
	KindQueueFull:             http.StatusServiceUnavailable,
	KindInternal:              http.StatusInternalServerError,
}

// Error is the structured error carried from the domain layer to transport.
type Error struct {
	Kind       Kind
	Message    string
	Details    map[string]any
	RequestID  string
	Err        error
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair, returning e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithRequestID stamps the request id that the transport layer generated.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// New creates an Error of the given kind with the HTTP status looked up
// from the taxonomy table.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus[kind]}
}

// Wrap attaches an underlying cause to a new Error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, HTTPStatus: httpStatus[kind]}
}

func Validation(message string) *Error            { return New(KindValidation, message) }
func NotFound(resource, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource).WithDetail("id", id)
}
func Conflict(message string) *Error               { return New(KindConflict, message) }
func Unauthorized(message string) *Error           { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error               { return New(KindForbidden, message) }
func RateLimited(message string) *Error             { return New(KindRateLimited, message) }
func DependencyUnavailable(dep string, err error) *Error {
	return Wrap(KindDependencyUnavailable, fmt.Sprintf("%s is unavailable", dep), err).WithDetail("dependency", dep)
}
func Timeout(operation string) *Error {
	return New(KindTimeout, "operation timed out").WithDetail("operation", operation)
}
func Cancelled(operation string) *Error {
	return New(KindCancelled, "operation cancelled").WithDetail("operation", operation)
}
func ModelUnhealthy(modelID string) *Error {
	return New(KindModelUnhealthy, "model is unhealthy").WithDetail("model_id", modelID)
}
func QueueFull(modelID string) *Error {
	return New(KindQueueFull, "inference queue is full").WithDetail("model_id", modelID)
}
func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusFor returns the HTTP status for err, defaulting to 500.
func StatusFor(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// KindOf returns the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
