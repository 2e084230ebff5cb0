/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation represents a params to adapt rate limiting in accordance with value in response.
type RateLimitingRoundTripperAdaptation struct {
	// ResponseHeaderName is a name of the response header that contains the rate limit of the remote side.
	ResponseHeaderName string

	// SlackPercent is a percent of the remote rate limit that is left unused.
	SlackPercent int
}

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// RateLimitingRoundTripper limits the rate of outgoing requests.
// The limit may be lowered dynamically by the value from the response header (see RateLimitingRoundTripperAdaptation).
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified rate limit and options.
// For options that are not presented, the default values will be used.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100 {
		return nil, fmt.Errorf("slack percent must be in range [0..100]")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
		Adaptation:  opts.Adaptation,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, err
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.Adaptation.ResponseHeaderName != "" {
		rt.adapt(resp)
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, rt.WaitTimeout)
	defer cancel()
	err := rt.limiter.Wait(waitCtx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The caller gave up, it's not a rate limiting problem.
		return ctxErr
	}
	return &RateLimitingWaitError{Inner: err}
}

// adapt lowers the limit to the one announced by the remote side, or restores the initial limit
// if the response doesn't carry a valid value.
func (rt *RateLimitingRoundTripper) adapt(resp *http.Response) {
	newLimit := rt.RateLimit
	if respLimit, err := strconv.Atoi(resp.Header.Get(rt.Adaptation.ResponseHeaderName)); err == nil && respLimit >= 0 {
		respLimit = respLimit * (100 - rt.Adaptation.SlackPercent) / 100
		if respLimit == 0 {
			respLimit = 1 // Send 1 request per second instead of stopping at all.
		}
		if respLimit < newLimit {
			newLimit = respLimit
		}
	}
	if rt.limiter.Limit() != rate.Limit(newLimit) {
		rt.limiter.SetLimit(rate.Limit(newLimit))
	}
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper when rate limit is exceeded.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}

// IsRateLimitingWaitError checks whether the error is caused by client side rate limiting.
func IsRateLimitingWaitError(err error) bool {
	var waitErr *RateLimitingWaitError
	return errors.As(err, &waitErr)
}
