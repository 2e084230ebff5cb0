/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
)

// RequestIDHeader is the name of HTTP header with request id.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper sets X-Request-ID header to the outgoing request.
type RequestIDRoundTripper struct {
	Delegate          http.RoundTripper
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is a function that provides a request id.
	// GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support and options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	provider := opts.RequestIDProvider
	if provider == nil {
		provider = GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{Delegate: delegate, RequestIDProvider: provider}
}

// RoundTrip adds X-Request-ID header to the request if it's not set yet.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := rt.RequestIDProvider(r.Context())
	if requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = CloneHTTPRequest(r) // Per RoundTripper contract.
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}
