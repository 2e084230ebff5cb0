/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-reqflow/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// RequestType is a type of request, e.g. a service name or an action.
	// If it's empty, the type from the request context is used.
	RequestType string

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. Default is all.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests.
	// Requests that took less time are not logged, failed ones are logged always.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that log requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, requestType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, requestType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that log requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, requestType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = GetLoggerFromContext
	}
	return &LoggingRoundTripper{Delegate: delegate, RequestType: requestType, Opts: opts}
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	logger := rt.Opts.LoggerProvider(ctx)
	if logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}
	if !failed && elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}

	requestType := rt.RequestType
	if requestType == "" {
		requestType = GetRequestTypeFromContext(ctx)
	}
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.String("request_type", requestType),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if requestID := r.Header.Get(RequestIDHeader); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	if err != nil {
		logger.Error("client http request failed", append(fields, log.Error(err))...)
		return resp, err
	}
	logger.Info("client http request done", fields...)
	return resp, err
}
