/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqflow/log/logtest"
)

func TestContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetRequestTypeFromContext(ctx))
	require.Empty(t, GetRequestIDFromContext(ctx))
	require.Nil(t, GetLoggerFromContext(ctx))

	logger := logtest.NewRecorder()
	ctx = NewContextWithRequestType(ctx, "orders")
	ctx = NewContextWithRequestID(ctx, "cl8a3qb1a5th1gfh5ka0")
	ctx = NewContextWithLogger(ctx, logger)
	require.Equal(t, "orders", GetRequestTypeFromContext(ctx))
	require.Equal(t, "cl8a3qb1a5th1gfh5ka0", GetRequestIDFromContext(ctx))
	require.Same(t, logger, GetLoggerFromContext(ctx))
}
