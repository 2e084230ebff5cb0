/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

// Table is a key to entry mapping safe for concurrent use.
// Every method is an atomic step, no caller may observe the table in a partially updated state.
type Table[E any] struct {
	mu      sync.Mutex
	entries map[Key]E
}

// NewTable creates a new empty Table.
func NewTable[E any]() *Table[E] {
	return &Table[E]{entries: make(map[Key]E)}
}

// Has reports whether the table contains an entry for the key.
func (t *Table[E]) Has(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Get returns the entry for the key.
func (t *Table[E]) Get(key Key) (E, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return e, ok
}

// Set stores the entry for the key replacing the existing one.
func (t *Table[E]) Set(key Key, entry E) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry
}

// Delete removes the entry for the key. Deleting a missing key is a no-op.
func (t *Table[E]) Delete(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Len returns the number of entries.
func (t *Table[E]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Swap stores the entry for the key and returns the previous one if it existed.
func (t *Table[E]) Swap(key Key, entry E) (prev E, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, existed = t.entries[key]
	t.entries[key] = entry
	return prev, existed
}

// SetIfAbsent stores the entry only if there is no entry for the key yet.
// Returns false if the key is already occupied.
func (t *Table[E]) SetIfAbsent(key Key, entry E) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return false
	}
	t.entries[key] = entry
	return true
}

// DeleteIf removes the entry for the key if the predicate (nil means "always") returns true for it.
// Returns whether the entry was removed and the number of entries left in the table.
func (t *Table[E]) DeleteIf(key Key, pred func(entry E) bool) (deleted bool, remaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && (pred == nil || pred(e)) {
		delete(t.entries, key)
		deleted = true
	}
	return deleted, len(t.entries)
}

// Update atomically reads, modifies and stores (or removes) the entry for the key.
// The fn receives the current entry, whether it exists and the table size before the update.
// If fn returns keep == false, the entry is removed.
func (t *Table[E]) Update(key Key, fn func(entry E, exists bool, size int) (newEntry E, keep bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	newEntry, keep := fn(e, ok, len(t.entries))
	if keep {
		t.entries[key] = newEntry
	} else {
		delete(t.entries, key)
	}
}

// inFlightEntry is stored for requests that may be canceled by a newer request with the same key.
type inFlightEntry struct {
	owner   uint64
	request *Request
	cancel  context.CancelCauseFunc
}

// debounceEntry marks the key as being requested.
type debounceEntry struct {
	owner uint64
}

// retryEntry tracks reconnection attempts of the key.
// Chains are dispatches waiting for or making a reconnection of the key.
type retryEntry struct {
	chains   []uint64
	request  *Request
	attempts int
	backOff  backoff.BackOff
}

// trackingTables holds the state of requests being dispatched.
type trackingTables struct {
	inFlight  *Table[inFlightEntry]
	debounced *Table[debounceEntry]
	retries   *Table[retryEntry]
}

func newTrackingTables() trackingTables {
	return trackingTables{
		inFlight:  NewTable[inFlightEntry](),
		debounced: NewTable[debounceEntry](),
		retries:   NewTable[retryEntry](),
	}
}

// release removes entries of the key that belong to the given owner.
func (tt trackingTables) release(key Key, owner uint64) {
	tt.inFlight.DeleteIf(key, func(e inFlightEntry) bool { return e.owner == owner })
	tt.debounced.DeleteIf(key, func(e debounceEntry) bool { return e.owner == owner })
}
