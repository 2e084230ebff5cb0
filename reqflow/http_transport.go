/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPTransport sends requests with *http.Client.
type HTTPTransport struct {
	// BaseURL is prepended to request URLs that are not absolute.
	BaseURL string

	// Client is used to send requests. http.DefaultClient is used if it's nil.
	Client *http.Client

	// MaxResponseBodySize limits the size of the response body. Zero means no limit.
	MaxResponseBodySize int64
}

var _ Transport = (*HTTPTransport)(nil)

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body := io.Reader(httpResp.Body)
	if t.MaxResponseBodySize > 0 {
		body = io.LimitReader(httpResp.Body, t.MaxResponseBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("read response body: %w", err)}
	}
	if t.MaxResponseBodySize > 0 && int64(len(data)) > t.MaxResponseBodySize {
		return nil, &TransportError{Method: req.Method, URL: req.URL,
			Err: fmt.Errorf("response body exceeds the limit of %d bytes", t.MaxResponseBodySize)}
	}

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Data: data, Request: req}, nil
}

func (t *HTTPTransport) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target, err := t.resolveURL(req.URL, req.Params)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

func (t *HTTPTransport) resolveURL(target string, params url.Values) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() && t.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(t.BaseURL, "/") + "/")
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		u = base.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery})
	}
	if len(params) != 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}
