// Package apperr defines the gateway error taxonomy and its HTTP mapping.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds reported by Kind.
const (
	KindUpstream   = "upstream"
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindInternal   = "internal"
	KindTimeout    = "timeout"
	KindCanceled   = "canceled"
)

// Sentinel causes for transport failures. They are matched with errors.Is
// against an UpstreamError.
var (
	ErrUnreachable = errors.New("backend unreachable")
	ErrTimeout     = errors.New("backend timeout")
)

// InternalMessage is the only text a client sees for unclassified failures.
const InternalMessage = "Internal server error"

// UpstreamError is returned by a backend client when the backend answers with
// an error status or when the call cannot complete.
type UpstreamError struct {
	Backend    string
	StatusCode int
	// Detail is the upstream body (decoded JSON or text) or a gateway-authored
	// message for transport failures.
	Detail any
	Cause  error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s backend: status %d: %v", e.Backend, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s backend: status %d", e.Backend, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

func (e *UpstreamError) Kind() string { return KindUpstream }

func (e *UpstreamError) HTTPStatus() int { return e.StatusCode }

func (e *UpstreamError) Payload() any { return e.Detail }

// Transport reports whether the error was produced by the gateway because the
// call did not complete, as opposed to a status reported by the backend.
func (e *UpstreamError) Transport() bool {
	return errors.Is(e.Cause, ErrUnreachable) || errors.Is(e.Cause, ErrTimeout)
}

// ValidationError is a failed cross-service referential check. It is built
// once and not modified afterwards.
type ValidationError struct {
	Message string
	Errors  []string
	// Causes keeps the upstream errors behind each failed check for logging.
	// It is never serialized.
	Causes []error
}

// NewValidationError builds a ValidationError with copies of the given slices.
func NewValidationError(message string, errs []string, causes []error) *ValidationError {
	return &ValidationError{
		Message: message,
		Errors:  append([]string(nil), errs...),
		Causes:  append([]error(nil), causes...),
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Errors)
}

func (e *ValidationError) Kind() string { return KindValidation }

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

func (e *ValidationError) Payload() any {
	return map[string]any{
		"message": e.Message,
		"errors":  e.Errors,
	}
}

// NotFoundError reports a missing primary resource of a composite read.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Kind() string { return KindNotFound }

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

func (e *NotFoundError) Payload() any { return e.Error() }

// InternalError is an unanticipated failure. Its cause is logged, never shown.
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) Kind() string { return KindInternal }

func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }

func (e *InternalError) Payload() any { return InternalMessage }

type kinder interface {
	Kind() string
}

type statuser interface {
	HTTPStatus() int
}

type payloader interface {
	Payload() any
}

// Kind classifies err.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status the gateway responds with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var s statuser
	if errors.As(err, &s) {
		return s.HTTPStatus()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the client-facing detail for err.
func Detail(err error) any {
	var p payloader
	if errors.As(err, &p) {
		return p.Payload()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.Is(err, context.Canceled):
		return "Request canceled"
	default:
		return InternalMessage
	}
}
