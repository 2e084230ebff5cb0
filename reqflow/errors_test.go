/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqflow/testutil"
)

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, "bad request"},
		{http.StatusUnauthorized, "unauthorized, please log in"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "request address not found: /api/items"},
		{http.StatusRequestTimeout, "request timeout"},
		{http.StatusInternalServerError, "internal server error"},
		{http.StatusNotImplemented, "service not implemented"},
		{http.StatusBadGateway, "bad gateway"},
		{http.StatusServiceUnavailable, "service unavailable"},
		{http.StatusGatewayTimeout, "gateway timeout"},
		{http.StatusHTTPVersionNotSupported, "HTTP version not supported"},
		{http.StatusConflict, "unexpected status code 409"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusMessage(tt.status, "/api/items"))
	}
}

func TestErrors(t *testing.T) {
	timeoutErr := &TimeoutError{Method: "GET", URL: "/x", Timeout: time.Second, Err: context.DeadlineExceeded}
	require.EqualError(t, timeoutErr, "GET /x: timeout of 1s exceeded: context deadline exceeded")
	require.ErrorIs(t, timeoutErr, ErrTimeout)

	exhaustedErr := fmt.Errorf("load: %w", &RetryExhaustedError{Method: "GET", URL: "/x", Attempts: 5, Last: timeoutErr})
	require.EqualError(t, exhaustedErr,
		"load: GET /x: reconnection failed after 5 attempts: GET /x: timeout of 1s exceeded: context deadline exceeded")
	testutil.RequireErrorIsAny(t, exhaustedErr, []error{ErrRetryExhausted})
	require.ErrorIs(t, exhaustedErr, ErrTimeout)
	require.False(t, IsCancellation(exhaustedErr))

	cancelErr := &CancellationError{Method: "GET", URL: "/x", Reason: ReasonSupersededByNewerRequest}
	require.EqualError(t, cancelErr, "GET /x: request canceled: superseded by a newer request")
	require.ErrorIs(t, cancelErr, ErrCanceled)
	require.False(t, errors.Is(cancelErr, context.Canceled))
	require.True(t, IsCancellation(cancelErr))

	dupErr := &DuplicateSuppressedError{Method: "GET", URL: "/x"}
	require.EqualError(t, dupErr, "/x is being requested, repeated submission suppressed")
	require.ErrorIs(t, dupErr, ErrDuplicateSuppressed)

	transportErr := &TransportError{Method: "POST", URL: "/y", Err: errors.New("connection refused")}
	require.EqualError(t, transportErr, "POST /y: transport error: connection refused")
}
