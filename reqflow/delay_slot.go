/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errDelaySuperseded = errors.New(ReasonSupersededByNewerDelayedRequest)

// delaySlot allows only one pending delayed request at a time.
// Starting a new wait cancels the previous one.
type delaySlot struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
}

// Wait blocks for d or until ctx is done or the wait is superseded by a newer one.
// The returned error is the cause of interruption (errDelaySuperseded if a newer wait started).
func (s *delaySlot) Wait(ctx context.Context, d time.Duration) error {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(errDelaySuperseded)
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-waitCtx.Done():
		return context.Cause(waitCtx)
	}
}
