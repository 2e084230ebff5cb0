/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqflow/log"
	"github.com/acronis/go-reqflow/log/logtest"
)

func newLoggingTestServer() *httptest.Server {
	router := chi.NewRouter()
	router.Get("/ok", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	router.Post("/teapot", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	})
	return httptest.NewServer(router)
}

func doLoggedRequest(t *testing.T, rt http.RoundTripper, ctx context.Context, method, url string) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: rt}).Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
}

func TestLoggingRoundTripper(t *testing.T) {
	server := newLoggingTestServer()
	defer server.Close()

	t.Run("all requests are logged", func(t *testing.T) {
		logger := logtest.NewRecorder()
		ctx := NewContextWithLogger(context.Background(), logger)
		rt := NewLoggingRoundTripper(http.DefaultTransport, "test-request")

		doLoggedRequest(t, rt, ctx, http.MethodPost, server.URL+"/teapot")

		entry, found := logger.FindEntry("client http request done")
		require.True(t, found)
		require.Equal(t, log.LevelInfo, entry.Level)
		require.Equal(t, http.MethodPost, entry.FieldString("method"))
		require.Equal(t, server.URL+"/teapot", entry.FieldString("url"))
		require.Equal(t, "test-request", entry.FieldString("request_type"))
		statusField, found := entry.FindField("status")
		require.True(t, found)
		require.EqualValues(t, http.StatusTeapot, statusField.Int)
	})

	t.Run("only failed requests are logged", func(t *testing.T) {
		logger := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "", LoggingRoundTripperOpts{
			Mode:           LoggingModeFailed,
			LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
		})
		ctx := NewContextWithRequestType(context.Background(), "ctx-request")

		doLoggedRequest(t, rt, ctx, http.MethodGet, server.URL+"/ok")
		require.Empty(t, logger.Entries())

		doLoggedRequest(t, rt, ctx, http.MethodPost, server.URL+"/teapot")
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, "ctx-request", logger.Entries()[0].FieldString("request_type"))
	})

	t.Run("fast requests are skipped", func(t *testing.T) {
		logger := logtest.NewRecorder()
		ctx := NewContextWithLogger(context.Background(), logger)
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-request", LoggingRoundTripperOpts{
			SlowRequestThreshold: time.Hour,
		})
		doLoggedRequest(t, rt, ctx, http.MethodGet, server.URL+"/ok")
		require.Empty(t, logger.Entries())
	})

	t.Run("none mode", func(t *testing.T) {
		logger := logtest.NewRecorder()
		ctx := NewContextWithLogger(context.Background(), logger)
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-request", LoggingRoundTripperOpts{
			Mode: LoggingModeNone,
		})
		doLoggedRequest(t, rt, ctx, http.MethodPost, server.URL+"/teapot")
		require.Empty(t, logger.Entries())
	})
}

func TestLoggingRoundTripper_TransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serverURL := "http://" + ln.Addr().String()
	_ = ln.Close()

	logger := logtest.NewRecorder()
	ctx := NewContextWithLogger(context.Background(), logger)
	rt := NewLoggingRoundTripper(http.DefaultTransport, "test-request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, nil)
	require.NoError(t, err)

	resp, err := (&http.Client{Transport: rt}).Do(req)
	require.Error(t, err)
	require.Nil(t, resp)

	entry, found := logger.FindEntry("client http request failed")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	_, found = entry.FindField("status")
	require.False(t, found)
	_, found = entry.FindField("error")
	require.True(t, found)
}
