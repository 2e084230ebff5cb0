/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_ResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		target  string
		params  url.Values
		want    string
	}{
		{name: "no base", target: "http://localhost/a", want: "http://localhost/a"},
		{name: "relative", baseURL: "http://localhost/api", target: "/users", want: "http://localhost/api/users"},
		{name: "base with slash", baseURL: "http://localhost/api/", target: "users", want: "http://localhost/api/users"},
		{name: "absolute target", baseURL: "http://localhost/api", target: "http://other/x", want: "http://other/x"},
		{
			name:    "params merged with query",
			baseURL: "http://localhost",
			target:  "/users?sort=name",
			params:  url.Values{"page": {"2"}},
			want:    "http://localhost/users?page=2&sort=name",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			transport := &HTTPTransport{BaseURL: tt.baseURL}
			got, err := transport.resolveURL(tt.target, tt.params)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPTransport_Send(t *testing.T) {
	type received struct {
		contentType string
		body        string
	}
	receivedReqs := make(chan received, 10)
	router := chi.NewRouter()
	router.Post("/echo", func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedReqs <- received{r.Header.Get("Content-Type"), string(body)}
		rw.Header().Set("X-Result", "done")
		rw.WriteHeader(http.StatusCreated)
		_, _ = rw.Write([]byte("created"))
	})
	router.Get("/large", func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte(strings.Repeat("x", 100)))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	transport := &HTTPTransport{BaseURL: server.URL, Client: server.Client(), MaxResponseBodySize: 50}

	tests := []struct {
		name            string
		body            interface{}
		header          http.Header
		wantContentType string
		wantBody        string
	}{
		{name: "json", body: map[string]int{"n": 1}, wantContentType: "application/json", wantBody: `{"n":1}`},
		{name: "form", body: url.Values{"a": {"1"}}, wantContentType: "application/x-www-form-urlencoded", wantBody: "a=1"},
		{name: "string", body: "raw", header: http.Header{"Content-Type": {"text/plain"}}, wantContentType: "text/plain", wantBody: "raw"},
		{name: "bytes", body: []byte("bin"), wantBody: "bin"},
		{name: "reader", body: strings.NewReader("stream"), wantBody: "stream"},
		{name: "json with explicit content type", body: []int{1}, header: http.Header{"Content-Type": {"application/vnd.api+json"}},
			wantContentType: "application/vnd.api+json", wantBody: "[1]"},
	}
	for _, tt := range tests {
		req := &Request{Method: "post", URL: "/echo", Body: tt.body, Header: tt.header}
		resp, err := transport.Send(context.Background(), req)
		require.NoError(t, err, tt.name)
		require.Equal(t, http.StatusCreated, resp.Status, tt.name)
		require.Equal(t, []byte("created"), resp.Data, tt.name)
		require.Equal(t, "done", resp.Header.Get("X-Result"), tt.name)
		require.Same(t, req, resp.Request, tt.name)

		got := <-receivedReqs
		require.Equal(t, tt.wantContentType, got.contentType, tt.name)
		require.Equal(t, tt.wantBody, got.body, tt.name)
	}

	t.Run("body limit", func(t *testing.T) {
		_, err := transport.Send(context.Background(), NewRequest(http.MethodGet, "/large"))
		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		require.EqualError(t, err, "GET /large: transport error: response body exceeds the limit of 50 bytes")
	})

	t.Run("unencodable body", func(t *testing.T) {
		_, err := transport.Send(context.Background(), &Request{Method: http.MethodPost, URL: "/echo", Body: make(chan int)})
		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Contains(t, err.Error(), "encode body")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := transport.Send(ctx, NewRequest(http.MethodGet, "/large"))
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("connection refused", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()
		_, err := (&HTTPTransport{}).Send(context.Background(), NewRequest(http.MethodGet, closed.URL))
		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
	})
}
