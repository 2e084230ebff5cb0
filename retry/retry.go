/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies that define how long to wait between reconnection attempts.
package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// Strategy is a name of backoff strategy.
type Strategy string

// Supported strategies.
const (
	StrategyConstant    Strategy = "constant"
	StrategyExponential Strategy = "exponential"
)

// IsValid checks if the strategy is supported.
func (s Strategy) IsValid() bool {
	return s == StrategyConstant || s == StrategyExponential
}

// ConstantBackoffPolicy waits the same interval before every attempt.
// It does not stop by itself, the number of attempts is bounded by the caller.
type ConstantBackoffPolicy struct {
	interval time.Duration
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval.
func NewConstantBackoffPolicy(interval time.Duration) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	bf := backoff.NewConstantBackOff(p.interval)
	bf.Reset()
	return bf
}

// ExponentialBackoffPolicy grows the interval by multiplier after every attempt (without jitter and without
// elapsed time limit). The interval never exceeds maxInterval if it's positive.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
}

// NewExponentialBackoffPolicy returns an exponential backoff policy.
func NewExponentialBackoffPolicy(initialInterval time.Duration, multiplier float64, maxInterval time.Duration) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, multiplier, maxInterval}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.Multiplier = p.multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	} else {
		eb.MaxInterval = time.Duration(1<<63 - 1)
	}
	eb.Reset()
	return eb
}

// NewPolicy makes a policy by strategy name.
func NewPolicy(strategy Strategy, interval time.Duration, multiplier float64, maxInterval time.Duration) (Policy, error) {
	if interval < 0 {
		return nil, fmt.Errorf("backoff interval must be non-negative")
	}
	switch strategy {
	case StrategyConstant, "":
		return NewConstantBackoffPolicy(interval), nil
	case StrategyExponential:
		if multiplier <= 1 {
			return nil, fmt.Errorf("exponential backoff multiplier must be greater than 1")
		}
		return NewExponentialBackoffPolicy(interval, multiplier, maxInterval), nil
	}
	return nil, fmt.Errorf("unknown backoff strategy %q, should be one of [%s, %s]",
		strategy, StrategyConstant, StrategyExponential)
}
