/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqflow/log"
	"github.com/acronis/go-reqflow/log/logtest"
	"github.com/acronis/go-reqflow/testutil"
)

func TestNewWithOpts(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/orders/{id}", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Echo-Request-ID", r.Header.Get(RequestIDHeader))
		rw.Header().Set("X-Echo-User-Agent", r.UserAgent())
		rw.Header().Set("X-Echo-Authorization", r.Header.Get("Authorization"))
		rw.Header().Set("X-Echo-Order", chi.URLParam(r, "id"))
		rw.WriteHeader(http.StatusTeapot)
	})
	server := httptest.NewServer(router)
	defer server.Close()
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	logger := logtest.NewRecorder()
	collector := NewPrometheusMetricsCollector("")

	cfg := NewDefaultConfig()
	cfg.UserAgent = "reqflow-test/1.0"
	cfg.Log.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.RateLimits = RateLimitsConfig{Enabled: true, Limit: 100}
	client, err := NewWithOpts(cfg, Opts{
		RequestType:       "orders",
		LoggerProvider:    func(ctx context.Context) log.FieldLogger { return logger },
		RequestIDProvider: func(ctx context.Context) string { return "req-42" },
		MetricsCollector:  collector,
		AuthProvider: AuthProviderFunc(func(ctx context.Context, scope ...string) (string, error) {
			return "secret", nil
		}),
	})
	require.NoError(t, err)
	require.Equal(t, DefaultClientWaitTimeout, client.Timeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL+"/orders/7", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "req-42", resp.Header.Get("X-Echo-Request-ID"))
	require.Equal(t, "reqflow-test/1.0", resp.Header.Get("X-Echo-User-Agent"))
	require.Equal(t, "Bearer secret", resp.Header.Get("X-Echo-Authorization"))
	require.Equal(t, "7", resp.Header.Get("X-Echo-Order"))

	entry, found := logger.FindEntry("client http request done")
	require.True(t, found)
	require.Equal(t, "req-42", entry.FieldString("request_id"))
	require.Equal(t, "orders", entry.FieldString("request_type"))

	testutil.RequireSamplesCountInHistogram(t, collector.Durations.With(prometheus.Labels{
		"type": "orders", "method": http.MethodPost, "remote_address": serverURL.Host, "status": "418",
	}).(prometheus.Histogram), 1)
}

func TestNewWithOpts_InvalidRateLimits(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimits = RateLimitsConfig{Enabled: true, Limit: 10, Burst: -1}
	_, err := NewWithOpts(cfg, Opts{})
	require.EqualError(t, err, "create rate limiting round tripper: burst must be positive")

	require.Panics(t, func() { MustWithOpts(cfg, Opts{}) })
}

func TestCloneHTTPRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	require.NoError(t, err)
	req.Header.Set("X-Foo", "bar")

	clone := CloneHTTPRequest(req)
	clone.Header.Set("X-Foo", "baz")
	require.Equal(t, "bar", req.Header.Get("X-Foo"))
	require.Equal(t, "baz", clone.Header.Get("X-Foo"))
	require.Equal(t, req.URL, clone.URL)
}
