/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/acronis/go-reqflow/httpclient"
	"github.com/acronis/go-reqflow/log"
)

// ClientRequestType is used as the request type in logs and metrics of the underlying HTTP client.
const ClientRequestType = "reqflow"

// ClientOpts represents options for NewClient.
type ClientOpts struct {
	Logger log.FieldLogger
	Hooks  Hooks

	// MetricsCollector is used when metrics are enabled in the config.
	MetricsCollector MetricsCollector

	// TransportMetricsCollector is passed to the HTTP client when its metrics are enabled.
	TransportMetricsCollector httpclient.MetricsCollector

	// AuthProvider enables bearer authorization of outgoing requests.
	AuthProvider httpclient.AuthProvider

	ValidateStatus func(status int) bool
}

// Client provides verb helpers over Dispatcher.
type Client struct {
	dispatcher *Dispatcher
}

// NewClient creates a new Client that sends requests over HTTP according to the config.
func NewClient(cfg *Config, opts ClientOpts) (*Client, error) {
	httpClient, err := httpclient.NewWithOpts(&cfg.Transport, httpclient.Opts{
		RequestType:      ClientRequestType,
		MetricsCollector: opts.TransportMetricsCollector,
		AuthProvider:     opts.AuthProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	transport := &HTTPTransport{
		BaseURL:             cfg.BaseURL,
		Client:              httpClient,
		MaxResponseBodySize: int64(cfg.MaxResponseBodySize),
	}
	return NewClientWithTransport(cfg, transport, opts)
}

// NewClientWithTransport creates a new Client that sends requests via the given transport.
func NewClientWithTransport(cfg *Config, transport Transport, opts ClientOpts) (*Client, error) {
	policy, err := cfg.BackoffPolicy()
	if err != nil {
		return nil, fmt.Errorf("create backoff policy: %w", err)
	}
	metrics := opts.MetricsCollector
	if !cfg.Metrics.Enabled {
		metrics = nil
	}
	dispatcher, err := NewDispatcherWithOpts(transport, DispatcherOpts{
		Logger:               opts.Logger,
		Hooks:                opts.Hooks,
		MetricsCollector:     metrics,
		DefaultHeader:        cfg.Header(),
		ValidateStatus:       opts.ValidateStatus,
		MaxReconnectionTimes: cfg.MaxReconnectionTimes,
		BackoffPolicy:        policy,
		DelayTime:            cfg.DelayTime,
		RequestTimeout:       cfg.RequestTimeout,
		KeyStrictness:        cfg.KeyStrictness,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	return &Client{dispatcher: dispatcher}, nil
}

// Dispatcher returns the underlying Dispatcher.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Request dispatches the request.
func (c *Client) Request(ctx context.Context, req *Request) (*Result, error) {
	return c.dispatcher.Dispatch(ctx, req)
}

// Get sends GET request with the query params.
func (c *Client) Get(ctx context.Context, target string, params url.Values, policy Policy, header http.Header) (*Result, error) {
	return c.Request(ctx, &Request{Method: http.MethodGet, URL: target, Params: params, Header: header, Policy: policy})
}

// Post sends POST request with the data as a body.
func (c *Client) Post(ctx context.Context, target string, data interface{}, policy Policy, header http.Header) (*Result, error) {
	return c.withBody(ctx, http.MethodPost, target, data, policy, header)
}

// Put sends PUT request with the data as a body.
func (c *Client) Put(ctx context.Context, target string, data interface{}, policy Policy, header http.Header) (*Result, error) {
	return c.withBody(ctx, http.MethodPut, target, data, policy, header)
}

// Delete sends DELETE request with the data as a body.
func (c *Client) Delete(ctx context.Context, target string, data interface{}, policy Policy, header http.Header) (*Result, error) {
	return c.withBody(ctx, http.MethodDelete, target, data, policy, header)
}

// Patch sends PATCH request with the data as a body.
func (c *Client) Patch(ctx context.Context, target string, data interface{}, policy Policy, header http.Header) (*Result, error) {
	return c.withBody(ctx, http.MethodPatch, target, data, policy, header)
}

func (c *Client) withBody(
	ctx context.Context, method, target string, data interface{}, policy Policy, header http.Header,
) (*Result, error) {
	return c.Request(ctx, &Request{Method: method, URL: target, Body: data, Header: header, Policy: policy})
}
