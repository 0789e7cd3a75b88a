// Package xerrors implements the client's error taxonomy. Every failure
// surfaced to a caller carries exactly one Kind; transport-level exception
// types (http errors, net.Error, context errors) are translated into this
// taxonomy before crossing a facade method boundary.
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is one of the canonical error kinds from the error handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindRateLimit
	KindTransient
	KindCircuitOpen
	KindTimeout
	KindCancelled
	KindDomainError
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindDomainError:
		return "domain_error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by facade methods.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "GetBalances"

	// RetryAfter is set when the server (or the client-side limiter)
	// communicated a concrete wait duration (KindRateLimit).
	RetryAfter time.Duration

	// HTTPStatus and Code are set for KindDomainError: the original
	// exchange status code and typed error code string (e.g.
	// "INSUFFICIENT_BALANCE").
	HTTPStatus int
	Code       string

	Err error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s] (http %d): %v", e.Op, e.Kind, e.Code, e.HTTPStatus, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, xerrors.KindCircuitOpen-style) sentinels to work
// by kind rather than by identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a tagged error.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Validation builds a KindValidation error from a format string.
func Validation(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// RateLimited builds a KindRateLimit error carrying the retry-after hint.
func RateLimited(op string, retryAfter time.Duration, cause error) *Error {
	return &Error{Op: op, Kind: KindRateLimit, RetryAfter: retryAfter, Err: cause}
}

// Domain builds a KindDomainError error carrying the exchange's own code.
func Domain(op string, httpStatus int, code, message string) *Error {
	return &Error{
		Op:         op,
		Kind:       KindDomainError,
		HTTPStatus: httpStatus,
		Code:       code,
		Err:        errors.New(message),
	}
}

// CircuitOpen builds a KindCircuitOpen error.
func CircuitOpen(op string) *Error {
	return &Error{Op: op, Kind: KindCircuitOpen, Err: errors.New("circuit breaker is open")}
}

// Timeout builds a KindTimeout error.
func Timeout(op string, cause error) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: cause}
}

// Cancelled builds a KindCancelled error.
func Cancelled(op string, cause error) *Error {
	return &Error{Op: op, Kind: KindCancelled, Err: cause}
}

// Transient builds a KindTransient error (network failure or 5xx/408).
func Transient(op string, cause error) *Error {
	return &Error{Op: op, Kind: KindTransient, Err: cause}
}

// Authentication builds a KindAuthentication error.
func Authentication(op string, cause error) *Error {
	return &Error{Op: op, Kind: KindAuthentication, Err: cause}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the classified error kind is one the retry
// layer should attempt again (subject to its own attempt budget).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimit:
		return true
	default:
		return false
	}
}

// RetryableStatus reports whether an HTTP status code is retryable per the
// retry layer's configured rules.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
