/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// AuthBearerRoundTripperError is returned in RoundTrip method of AuthBearerRoundTripper
// when the token cannot be obtained.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return fmt.Sprintf("auth bearer round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthProvider provides a token for bearer authorization.
type AuthProvider interface {
	GetToken(ctx context.Context, scope ...string) (string, error)
}

// AuthProviderFunc allows to define get token logic in functional way.
type AuthProviderFunc func(ctx context.Context, scope ...string) (string, error)

// GetToken implements AuthProvider.
func (f AuthProviderFunc) GetToken(ctx context.Context, scope ...string) (string, error) {
	return f(ctx, scope...)
}

// AuthProviderInvalidator is implemented by providers that cache tokens.
// Invalidate is called when the remote side responds with 401 status code.
type AuthProviderInvalidator interface {
	Invalidate()
}

// AuthBearerRoundTripperOpts is options for AuthBearerRoundTripper.
type AuthBearerRoundTripperOpts struct {
	TokenScope []string
}

// AuthBearerRoundTripper implements http.RoundTripper interface
// and sets Authorization HTTP header in all outgoing requests.
type AuthBearerRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
	opts         AuthBearerRoundTripperOpts
}

// NewAuthBearerRoundTripper creates a new AuthBearerRoundTripper.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return NewAuthBearerRoundTripperWithOpts(delegate, authProvider, AuthBearerRoundTripperOpts{})
}

// NewAuthBearerRoundTripperWithOpts creates a new AuthBearerRoundTripper with options.
func NewAuthBearerRoundTripperWithOpts(
	delegate http.RoundTripper, authProvider AuthProvider, opts AuthBearerRoundTripperOpts,
) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{Delegate: delegate, AuthProvider: authProvider, opts: opts}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return rt.Delegate.RoundTrip(req)
	}
	token, err := rt.AuthProvider.GetToken(req.Context(), rt.opts.TokenScope...)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	req = CloneHTTPRequest(req) // Per RoundTripper contract.
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := rt.Delegate.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		if invalidator, ok := rt.AuthProvider.(AuthProviderInvalidator); ok {
			invalidator.Invalidate()
		}
	}
	return resp, err
}
