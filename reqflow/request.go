/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Policy defines how the request is orchestrated before it's sent.
type Policy struct {
	// NeedCancel makes a newer request with the same key cancel this one if it's still in flight.
	NeedCancel bool

	// Shake suppresses repeated requests with the same key while this one is in progress.
	Shake bool

	// Delay postpones sending. Only one delayed request may wait at a time,
	// a newer delayed request cancels the wait of the previous one.
	Delay bool

	// DelayTime overrides the default delay.
	DelayTime time.Duration
}

// Request describes an outgoing request. It should not be modified after it's passed to Dispatch.
type Request struct {
	Method string
	URL    string
	Params url.Values
	// Body is sent as is if it's []byte, string or io.Reader, url.Values are form-encoded,
	// other values are encoded as JSON. An io.Reader is rewound (or buffered once) so every attempt sends the same bytes.
	Body   interface{}
	Header http.Header
	Policy Policy
}

// NewRequest creates a new request.
func NewRequest(method, target string) *Request {
	return &Request{Method: method, URL: target}
}

func (r *Request) clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	return &c
}

// Response is a response received by the transport.
type Response struct {
	Status int
	Header http.Header
	Data   []byte
	// Request is the request (with merged headers) the response is received for.
	Request *Request
}

// JSON decodes the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

// Result is returned by the successful dispatch.
type Result struct {
	// Value is a value produced by the response hook or the raw response body if there is no hook.
	Value interface{}

	Response *Response
}

// Transport sends requests. Implementations must honor context cancellation.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc is an adapter to allow the use of ordinary functions as Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

func mergeHeaders(defaults, header http.Header) http.Header {
	merged := make(http.Header, len(defaults)+len(header))
	for k, v := range defaults {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	for k, v := range header {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return merged
}
