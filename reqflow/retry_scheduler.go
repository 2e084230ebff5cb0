/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-reqflow/log"
	"github.com/acronis/go-reqflow/retry"
)

// retryScheduler re-dispatches timed out requests.
// Attempts are counted per key, so requests sharing the key share the counter.
// The entry is removed when the last dispatch chain that timed out on the key is settled.
type retryScheduler struct {
	entries     *Table[retryEntry]
	maxAttempts int
	policy      retry.Policy
	hooks       *Hooks
	metrics     MetricsCollector
}

type retryDecision struct {
	attempt   int
	wait      time.Duration
	begin     bool
	exhausted bool
}

func (s *retryScheduler) decide(key Key, req *Request, chainID uint64) retryDecision {
	var d retryDecision
	s.entries.Update(key, func(e retryEntry, exists bool, size int) (retryEntry, bool) {
		switch {
		case !exists:
			d.begin = size == 0
			e = retryEntry{chains: []uint64{chainID}, request: req, attempts: 1, backOff: s.policy.NewBackOff()}
		case e.attempts < s.maxAttempts:
			e.chains = withChain(e.chains, chainID)
			e.attempts++
		default:
			e.chains = withChain(e.chains, chainID)
			d.attempt, d.exhausted = e.attempts, true
			return e, true
		}
		d.attempt = e.attempts
		if d.wait = e.backOff.NextBackOff(); d.wait == backoff.Stop {
			d.exhausted = true
		}
		return e, true
	})
	s.metrics.TableSize(TableRetries, s.entries.Len())
	return d
}

// onTimeout is called when the request timed out. It waits for the backoff interval and re-dispatches
// the request, or gives up if the maximum number of attempts is reached.
// The entry is left in the table, the caller settles it when the chain is resolved.
func (s *retryScheduler) onTimeout(
	ctx context.Context, chain *dispatchChain, key Key, req *Request, cause error,
	redispatch func(ctx context.Context) (*Result, error),
) (*Result, error) {
	d := s.decide(key, req, chain.id)
	if d.begin {
		notify(chain.logger, "TryBegin", s.hooks.TryBegin)
	}
	if d.exhausted {
		chain.logger.Warn("reconnection failed, giving up", log.Int("attempts", d.attempt), log.Error(cause))
		return nil, &RetryExhaustedError{Method: req.Method, URL: req.URL, Attempts: d.attempt, Last: cause}
	}

	chain.logger.Debug("request timed out, reconnection scheduled",
		log.Int("attempt", d.attempt), log.Duration("wait", d.wait), log.Error(cause))
	s.metrics.RetryScheduled(req.Method)

	timer := time.NewTimer(d.wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, &CancellationError{Method: req.Method, URL: req.URL, Reason: ctx.Err().Error(), Err: ctx.Err()}
	}
	return redispatch(ctx)
}

// settle detaches the chain from the retry entry of the key and removes the entry if no chains are left.
// TrySuccess or TryFail is fired when the last entry leaves the table.
func (s *retryScheduler) settle(chain *dispatchChain, key Key, succeeded bool) {
	var deleted bool
	var remaining int
	s.entries.Update(key, func(e retryEntry, exists bool, size int) (retryEntry, bool) {
		remaining = size
		if !exists {
			return e, false
		}
		chains, found := withoutChain(e.chains, chain.id)
		if !found {
			return e, true
		}
		if len(chains) != 0 {
			e.chains = chains
			return e, true
		}
		deleted, remaining = true, size-1
		return e, false
	})
	if !deleted {
		return
	}
	s.metrics.TableSize(TableRetries, remaining)
	if succeeded {
		chain.logger.Debug("reconnection succeeded")
	}
	if remaining != 0 {
		return
	}
	if succeeded {
		notify(chain.logger, "TrySuccess", s.hooks.TrySuccess)
	} else {
		notify(chain.logger, "TryFail", s.hooks.TryFail)
	}
}

func withChain(chains []uint64, id uint64) []uint64 {
	for _, c := range chains {
		if c == id {
			return chains
		}
	}
	return append(append(make([]uint64, 0, len(chains)+1), chains...), id)
}

func withoutChain(chains []uint64, id uint64) ([]uint64, bool) {
	for i, c := range chains {
		if c == id {
			return append(append(make([]uint64, 0, len(chains)-1), chains[:i]...), chains[i+1:]...), true
		}
	}
	return chains, false
}
