/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	table := NewTable[int]()
	require.False(t, table.Has(1))
	table.Delete(1) // no-op

	table.Set(1, 10)
	require.True(t, table.Has(1))
	v, ok := table.Get(1)
	require.True(t, ok)
	require.Equal(t, 10, v)
	require.Equal(t, 1, table.Len())

	prev, existed := table.Swap(1, 11)
	require.True(t, existed)
	require.Equal(t, 10, prev)

	require.False(t, table.SetIfAbsent(1, 12))
	require.True(t, table.SetIfAbsent(2, 20))
	require.Equal(t, 2, table.Len())

	deleted, remaining := table.DeleteIf(1, func(e int) bool { return e == 10 })
	require.False(t, deleted)
	require.Equal(t, 2, remaining)
	deleted, remaining = table.DeleteIf(1, func(e int) bool { return e == 11 })
	require.True(t, deleted)
	require.Equal(t, 1, remaining)
	deleted, remaining = table.DeleteIf(3, nil)
	require.False(t, deleted)
	require.Equal(t, 1, remaining)

	table.Update(2, func(e int, exists bool, size int) (int, bool) {
		require.True(t, exists)
		require.Equal(t, 1, size)
		return e + 1, true
	})
	v, _ = table.Get(2)
	require.Equal(t, 21, v)
	table.Update(2, func(e int, exists bool, size int) (int, bool) { return 0, false })
	require.False(t, table.Has(2))
	require.Equal(t, 0, table.Len())
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int]()
	const workers, iterations = 8, 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				table.Update(1, func(e int, _ bool, _ int) (int, bool) { return e + 1, true })
			}
		}()
	}
	wg.Wait()

	v, ok := table.Get(1)
	require.True(t, ok)
	require.Equal(t, workers*iterations, v)
}

func TestTrackingTables_Release(t *testing.T) {
	tt := newTrackingTables()
	key := DeriveKey("/x", "GET")

	tt.inFlight.Set(key, inFlightEntry{owner: 2})
	tt.debounced.Set(key, debounceEntry{owner: 2})

	// Settled superseded request must not remove entries of the newer one.
	tt.release(key, 1)
	require.True(t, tt.inFlight.Has(key))
	require.True(t, tt.debounced.Has(key))

	tt.release(key, 2)
	require.False(t, tt.inFlight.Has(key))
	require.False(t, tt.debounced.Has(key))
}
