// Package apierrors provides the error taxonomy shared by every component
// that talks to the campaign backend. Raw transport failures are converted
// into a classified error exactly once, at the boundary where they are first
// observed, so downstream code matches on the class instead of probing
// status codes or message substrings.
package apierrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Class identifies a category of failure. Classes are string-based for
// debuggability and natural JSON serialization.
type Class string

const (
	// ClassNetwork indicates the request produced no response at all.
	ClassNetwork Class = "NETWORK_ERROR"

	// ClassTimeout indicates an operation exceeded its time limit.
	ClassTimeout Class = "TIMEOUT"

	// ClassRateLimit indicates the backend rejected the request for rate reasons.
	ClassRateLimit Class = "RATE_LIMIT_EXCEEDED"

	// ClassValidation indicates the provided input is invalid or malformed.
	ClassValidation Class = "VALIDATION_ERROR"

	// ClassNotFound indicates a requested resource does not exist.
	ClassNotFound Class = "NOT_FOUND"

	// ClassAccessDenied indicates the caller lacks permission for the operation.
	ClassAccessDenied Class = "ACCESS_DENIED"

	// ClassServer indicates a 5xx-equivalent backend failure.
	ClassServer Class = "SERVER_ERROR"

	// ClassStream indicates a failure of the live update channel itself.
	ClassStream Class = "STREAM_ERROR"

	// ClassWorkflow indicates an invalid approval state transition.
	ClassWorkflow Class = "WORKFLOW_ERROR"

	// ClassUnknown indicates an unclassified failure.
	ClassUnknown Class = "UNKNOWN"
)

// Sentinel errors, one per class. Use errors.Is to test for them.
var (
	ErrNetwork      = errors.New("campaignsync: network error")
	ErrTimeout      = errors.New("campaignsync: operation timed out")
	ErrRateLimit    = errors.New("campaignsync: rate limit exceeded")
	ErrValidation   = errors.New("campaignsync: invalid input")
	ErrNotFound     = errors.New("campaignsync: not found")
	ErrAccessDenied = errors.New("campaignsync: access denied")
	ErrServer       = errors.New("campaignsync: server error")
	ErrStream       = errors.New("campaignsync: stream error")
	ErrWorkflow     = errors.New("campaignsync: invalid workflow transition")
)

// Error wraps an underlying failure with the operation that produced it and
// its class. It is the only error type components are expected to return
// across package boundaries.
type Error struct {
	// Op is the operation that failed (e.g., "startCampaign", "resolve").
	Op string

	// Class categorizes the failure for retry and display decisions.
	Class Class

	// Detail is an optional free-text annotation (reference, session id, ...).
	Detail string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds free-text context to an existing error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// New creates a classified error for the given operation. The sentinel for
// the class is attached so errors.Is keeps working on the wrapped chain.
func New(op string, class Class, err error) *Error {
	if err == nil {
		err = sentinelFor(class)
	} else if !errors.Is(err, sentinelFor(class)) {
		err = fmt.Errorf("%w: %w", sentinelFor(class), err)
	}
	return &Error{Op: op, Class: class, Err: err}
}

// Newf creates a classified error from a formatted message.
func Newf(op string, class Class, format string, args ...any) *Error {
	return New(op, class, fmt.Errorf(format, args...))
}

func sentinelFor(class Class) error {
	switch class {
	case ClassNetwork:
		return ErrNetwork
	case ClassTimeout:
		return ErrTimeout
	case ClassRateLimit:
		return ErrRateLimit
	case ClassValidation:
		return ErrValidation
	case ClassNotFound:
		return ErrNotFound
	case ClassAccessDenied:
		return ErrAccessDenied
	case ClassServer:
		return ErrServer
	case ClassStream:
		return ErrStream
	case ClassWorkflow:
		return ErrWorkflow
	default:
		return errors.New("campaignsync: unknown error")
	}
}

// ClassOf reports the class of err, or ClassUnknown when err carries none.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return ClassNetwork
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrRateLimit):
		return ClassRateLimit
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrAccessDenied):
		return ClassAccessDenied
	case errors.Is(err, ErrServer):
		return ClassServer
	case errors.Is(err, ErrStream):
		return ClassStream
	case errors.Is(err, ErrWorkflow):
		return ClassWorkflow
	}
	return ClassUnknown
}

// Retryable reports whether err is worth retrying. Network, timeout,
// rate-limit, and server failures are transient; validation, not-found, and
// access-denied failures never resolve themselves.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassNetwork, ClassTimeout, ClassRateLimit, ClassServer:
		return true
	default:
		return false
	}
}

// FromHTTP classifies an HTTP response status at the transport boundary.
// A short excerpt of the body is preserved as detail for diagnostics.
func FromHTTP(op string, status int, body []byte) *Error {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}

	var class Class
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		class = ClassTimeout
	case status == http.StatusTooManyRequests:
		class = ClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		class = ClassAccessDenied
	case status == http.StatusNotFound:
		class = ClassNotFound
	case status >= 400 && status < 500:
		class = ClassValidation
	case status >= 500:
		class = ClassServer
	default:
		class = ClassUnknown
	}

	err := Newf(op, class, "backend returned status %d", status)
	if excerpt != "" {
		err.Detail = excerpt
	}
	return err
}

// FromTransport classifies an error returned by the HTTP client itself, i.e.
// a request that produced no response. Deadline and net timeout errors map
// to the timeout class, everything else to network. The message probe is a
// fallback for SDK errors that flatten the chain into a string.
func FromTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(op, ClassTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(op, ClassTimeout, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") {
		return New(op, ClassTimeout, err)
	}
	return New(op, ClassNetwork, err)
}

// IsNotFound checks if an error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied checks if an error indicates denied access.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsValidation checks if an error indicates invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
