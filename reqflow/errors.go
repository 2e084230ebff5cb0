/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors that may be used with errors.Is for checking the kind of dispatch failure.
var (
	ErrCanceled            = errors.New("request canceled")
	ErrDuplicateSuppressed = errors.New("duplicate request suppressed")
	ErrRetryExhausted      = errors.New("retry exhausted")
	ErrTimeout             = errors.New("request timed out")
)

// Cancellation reasons.
const (
	ReasonSupersededByNewerRequest        = "superseded by a newer request"
	ReasonSupersededByNewerDelayedRequest = "superseded by a newer delayed request"
)

// TransportError is returned when the request failed without receiving an HTTP response
// (connection refused, DNS failure, broken body and so on).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the next error in the error chain.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned when the response status is not accepted by the status validator.
// The response is preserved for programmatic inspection.
type HTTPStatusError struct {
	Method   string
	URL      string
	Status   int
	Response *Response
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, StatusMessage(e.Status, e.URL))
}

// StatusMessage returns a human-readable description of the HTTP status code.
func StatusMessage(status int, url string) string {
	switch status {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized, please log in"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "request address not found: " + url
	case http.StatusRequestTimeout:
		return "request timeout"
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusNotImplemented:
		return "service not implemented"
	case http.StatusBadGateway:
		return "bad gateway"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusGatewayTimeout:
		return "gateway timeout"
	case http.StatusHTTPVersionNotSupported:
		return "HTTP version not supported"
	}
	return fmt.Sprintf("unexpected status code %d", status)
}

// TimeoutError is returned when a single attempt timed out. It triggers retrying and is
// seen by callers only as the last error of RetryExhaustedError.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %s: timeout of %s exceeded: %v", e.Method, e.URL, e.Timeout, e.Err)
	}
	return fmt.Sprintf("%s %s: timeout exceeded: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the next error in the error chain.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is allows to check the error with errors.Is(err, ErrTimeout).
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CancellationError is returned when the request was intentionally abandoned:
// superseded by a newer request with the same key, superseded by a newer delayed request,
// or the caller's context was done.
type CancellationError struct {
	Method string
	URL    string
	Reason string
	// Err is the context error if the cancellation was initiated by the caller.
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("%s %s: request canceled: %s", e.Method, e.URL, e.Reason)
}

// Unwrap returns the next error in the error chain.
func (e *CancellationError) Unwrap() error {
	return e.Err
}

// Is allows to check the error with errors.Is(err, ErrCanceled).
func (e *CancellationError) Is(target error) bool {
	return target == ErrCanceled
}

// IsCancellation reports whether the request was intentionally canceled and not failed.
func IsCancellation(err error) bool {
	var cancelErr *CancellationError
	return errors.As(err, &cancelErr) || errors.Is(err, context.Canceled)
}

// DuplicateSuppressedError is returned when the debounced request with the same key is still in progress.
// The transport is not touched in this case.
type DuplicateSuppressedError struct {
	Method string
	URL    string
}

func (e *DuplicateSuppressedError) Error() string {
	return fmt.Sprintf("%s is being requested, repeated submission suppressed", e.URL)
}

// Is allows to check the error with errors.Is(err, ErrDuplicateSuppressed).
func (e *DuplicateSuppressedError) Is(target error) bool {
	return target == ErrDuplicateSuppressed
}

// RetryExhaustedError is returned when the request kept timing out after the maximum number of reconnection attempts.
type RetryExhaustedError struct {
	Method   string
	URL      string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s %s: reconnection failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Last)
}

// Unwrap returns the last timeout error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// Is allows to check the error with errors.Is(err, ErrRetryExhausted).
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}
