/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds *http.Client with a chain of round trippers
// (logging, metrics, rate limiting, bearer authorization, user agent and request id)
// used by reqflow to send requests.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/acronis/go-reqflow/log"
)

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of the Headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	return r
}

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// RequestType is a type of request, e.g. a service name or an action.
	// It's used in logs and metrics. If it's empty, the type from the request context is used.
	RequestType string

	// Delegate is the innermost RoundTripper in the chain. A clone of http.DefaultTransport is used by default
	// (with the custom DNS resolver if it's configured).
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// MetricsCollector is used when metrics are enabled in the config.
	MetricsCollector MetricsCollector

	// AuthProvider enables bearer authorization when it's not nil.
	AuthProvider AuthProvider
}

// New creates *http.Client according to the config.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates *http.Client according to the config and options.
// The round trippers are chained in the following order (from the outermost):
// request id, user agent, auth bearer, rate limiting, metrics, logging.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		var resolver *net.Resolver
		if len(cfg.DNSResolver.Addresses) != 0 {
			var err error
			if resolver, err = NewRoundRobinDNSResolver(cfg.DNSResolver.Addresses, cfg.DNSResolver.Timeout); err != nil {
				return nil, fmt.Errorf("create dns resolver: %w", err)
			}
		}
		delegate = newDelegateTransport(resolver)
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled && opts.MetricsCollector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.MetricsCollector,
		})
	}

	if cfg.RateLimits.Enabled {
		rateLimiting, err := NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
		delegate = rateLimiting
	}

	if opts.AuthProvider != nil {
		delegate = NewAuthBearerRoundTripper(delegate, opts.AuthProvider)
	}

	if cfg.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, cfg.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// MustWithOpts creates *http.Client according to the config and options and panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
