/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeT records failures reported by the require helpers.
type fakeT struct {
	failed  bool
	helpers int
	msg     string
}

func (t *fakeT) Helper() {
	t.helpers++
}

func (t *fakeT) FailNow() {
	t.failed = true
}

func (t *fakeT) Errorf(format string, args ...interface{}) {
	t.msg = fmt.Sprintf(format, args...)
}

func TestRequireNoReceive(t *testing.T) {
	ft := &fakeT{}
	RequireNoReceive(ft, make(chan struct{}), 10*time.Millisecond)
	require.False(t, ft.failed)
	require.Equal(t, 1, ft.helpers)

	ch := make(chan string, 1)
	ch <- "late response"
	ft = &fakeT{}
	RequireNoReceive(ft, ch, time.Second, "response after cancel")
	require.True(t, ft.failed)
	require.Contains(t, ft.msg, "Unexpected value was received from channel")
}
