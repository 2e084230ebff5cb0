/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"time"

	"github.com/stretchr/testify/require"
)

// RequireReceive waits for a value from the channel and fails test immediately if nothing is received within timeout.
func RequireReceive[T any](t require.TestingT, c <-chan T, timeout time.Duration, msgAndArgs ...interface{}) T {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var zero T
	select {
	case v := <-c:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "Nothing was received from channel within "+timeout.String(), msgAndArgs...)
	}
	return zero
}

// RequireNoReceive fails test immediately if a value is received from the channel within timeout.
func RequireNoReceive[T any](t require.TestingT, c <-chan T, timeout time.Duration, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case v := <-c:
		require.FailNow(t, "Unexpected value was received from channel", append([]interface{}{v}, msgAndArgs...)...)
	case <-time.After(timeout):
	}
}
