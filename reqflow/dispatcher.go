/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/acronis/go-reqflow/httpclient"
	"github.com/acronis/go-reqflow/log"
	"github.com/acronis/go-reqflow/retry"
)

// Default values of dispatcher options.
const (
	DefaultMaxReconnectionTimes = 5
	DefaultTimeStep             = time.Second
	DefaultDelayTime            = 500 * time.Millisecond
	DefaultRequestTimeout       = 10 * time.Second
)

var errSupersededInFlight = errors.New(ReasonSupersededByNewerRequest)

// DispatcherOpts represents options for Dispatcher.
// For options that are not presented, the default values will be used.
type DispatcherOpts struct {
	// Logger is used for logging. Nothing is logged by default.
	Logger log.FieldLogger

	// Hooks are application callbacks.
	Hooks Hooks

	// MetricsCollector collects dispatcher metrics.
	MetricsCollector MetricsCollector

	// DefaultHeader is merged with the request header, the request header wins on conflicts.
	DefaultHeader http.Header

	// ValidateStatus decides whether the response status means success. Any 2xx status is accepted by default.
	ValidateStatus func(status int) bool

	// MaxReconnectionTimes is the maximum number of reconnections of the timed out request.
	MaxReconnectionTimes int

	// BackoffPolicy defines intervals between reconnections.
	// Constant policy with DefaultTimeStep interval is used by default.
	BackoffPolicy retry.Policy

	// DelayTime is the default delay of the request with Policy.Delay.
	DelayTime time.Duration

	// RequestTimeout limits a single attempt. Negative value disables the limit.
	RequestTimeout time.Duration

	// KeyStrictness defines how the request key is derived.
	KeyStrictness KeyStrictness
}

// Dispatcher applies cancellation, delay, debounce and reconnection policies to requests
// and sends them via the transport.
// The tracking state belongs to the Dispatcher instance, it's safe for concurrent use.
type Dispatcher struct {
	transport      Transport
	logger         log.FieldLogger
	hooks          Hooks
	metrics        MetricsCollector
	defaultHeader  http.Header
	validateStatus func(status int) bool
	delayTime      time.Duration
	requestTimeout time.Duration
	keyOf          KeyDeriver

	tables    trackingTables
	delay     delaySlot
	retries   *retryScheduler
	attemptID atomic.Uint64
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(transport Transport) (*Dispatcher, error) {
	return NewDispatcherWithOpts(transport, DispatcherOpts{})
}

// NewDispatcherWithOpts creates a new Dispatcher with options.
func NewDispatcherWithOpts(transport Transport, opts DispatcherOpts) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport must be specified")
	}
	if opts.MaxReconnectionTimes < 0 {
		return nil, fmt.Errorf("max reconnection times must be non-negative")
	}
	if opts.KeyStrictness != "" && !opts.KeyStrictness.IsValid() {
		return nil, fmt.Errorf("unknown key strictness %q", opts.KeyStrictness)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.ValidateStatus == nil {
		opts.ValidateStatus = IsSuccessStatus
	}
	if opts.MaxReconnectionTimes == 0 {
		opts.MaxReconnectionTimes = DefaultMaxReconnectionTimes
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = retry.NewConstantBackoffPolicy(DefaultTimeStep)
	}
	if opts.DelayTime <= 0 {
		opts.DelayTime = DefaultDelayTime
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	d := &Dispatcher{
		transport:      transport,
		logger:         opts.Logger,
		hooks:          opts.Hooks,
		metrics:        opts.MetricsCollector,
		defaultHeader:  opts.DefaultHeader.Clone(),
		validateStatus: opts.ValidateStatus,
		delayTime:      opts.DelayTime,
		requestTimeout: opts.RequestTimeout,
		keyOf:          NewKeyDeriver(opts.KeyStrictness),
		tables:         newTrackingTables(),
	}
	d.retries = &retryScheduler{
		entries:     d.tables.retries,
		maxAttempts: opts.MaxReconnectionTimes,
		policy:      opts.BackoffPolicy,
		hooks:       &d.hooks,
		metrics:     d.metrics,
	}
	return d, nil
}

// IsSuccessStatus reports whether the status is 2xx.
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}

// KeyOf returns the key of the request used in the tracking tables.
func (d *Dispatcher) KeyOf(req *Request) Key {
	return d.keyOf(req)
}

// InFlight reports whether a cancelable request with the key is in flight.
func (d *Dispatcher) InFlight(key Key) bool {
	return d.tables.inFlight.Has(key)
}

// Debounced reports whether a debounced request with the key is in progress.
func (d *Dispatcher) Debounced(key Key) bool {
	return d.tables.debounced.Has(key)
}

// RetryAttempts returns the number of reconnection attempts made for the key (0 if it's not reconnecting).
func (d *Dispatcher) RetryAttempts(key Key) int {
	e, _ := d.tables.retries.Get(key)
	return e.attempts
}

// Dispatch applies the request policy, sends the request and blocks until the result is ready.
// Policies are applied in the following order: cancellation of the in-flight request with the same key,
// delay, debounce, header merge and request hook, sending, and reconnection if the request timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request must not be nil")
	}
	start := time.Now()
	key := d.keyOf(req)
	chain := &dispatchChain{id: d.attemptID.Inc(), requestID: xid.New().String()}
	chain.logger = d.logger.With(
		log.String("request_id", chain.requestID),
		log.String("method", strings.ToUpper(req.Method)),
		log.String("url", req.URL),
		log.String("key", key.String()),
	)

	var result *Result
	body, err := newRequestBody(req.Body)
	if err != nil {
		err = &TransportError{Method: req.Method, URL: req.URL, Err: err}
	} else {
		chain.body = body
		result, err = d.dispatch(ctx, chain, key, req)
		d.retries.settle(chain, key, err == nil)
	}

	outcome := OutcomeOf(err)
	d.metrics.DispatchFinished(req.Method, outcome, time.Since(start))
	if err != nil {
		chain.logger.Debug("request dispatch failed", log.String("outcome", string(outcome)), log.Error(err))
	}
	return result, err
}

// dispatchChain is shared by the first dispatch of the request and its reconnections.
type dispatchChain struct {
	id        uint64
	requestID string
	logger    log.FieldLogger
	body      *requestBody
}

func (d *Dispatcher) dispatch(ctx context.Context, chain *dispatchChain, key Key, req *Request) (*Result, error) {
	owner := d.attemptID.Inc()

	attemptCtx, cancelAttempt := context.WithCancelCause(ctx)
	defer cancelAttempt(nil)
	defer d.release(key, owner)

	if req.Policy.NeedCancel {
		prev, superseded := d.tables.inFlight.Swap(key, inFlightEntry{owner: owner, request: req, cancel: cancelAttempt})
		d.metrics.TableSize(TableInFlight, d.tables.inFlight.Len())
		if superseded {
			prev.cancel(errSupersededInFlight)
			chain.logger.Debug("in-flight request with the same key canceled")
		}
	}

	if req.Policy.Delay {
		delay := req.Policy.DelayTime
		if delay <= 0 {
			delay = d.delayTime
		}
		if err := d.delay.Wait(attemptCtx, delay); err != nil {
			return nil, interruptionError(ctx, req, err)
		}
	}

	if req.Policy.Shake {
		if !d.tables.debounced.SetIfAbsent(key, debounceEntry{owner: owner}) {
			return nil, &DuplicateSuppressedError{Method: req.Method, URL: req.URL}
		}
		d.metrics.TableSize(TableDebounced, d.tables.debounced.Len())
	}

	prepared, err := d.prepare(attemptCtx, req, chain.body)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, interruptionError(ctx, req, context.Cause(attemptCtx))
		}
		return nil, err
	}

	redispatch := func(ctx context.Context) (*Result, error) {
		return d.dispatch(ctx, chain, key, req)
	}

	resp, sendErr := d.send(attemptCtx, prepared, chain)
	d.release(key, owner)

	if sendErr != nil {
		if attemptCtx.Err() != nil {
			return nil, interruptionError(ctx, req, context.Cause(attemptCtx))
		}
		var timeoutErr *TimeoutError
		if errors.As(sendErr, &timeoutErr) {
			return d.retries.onTimeout(ctx, chain, key, req, sendErr, redispatch)
		}
		return nil, sendErr
	}

	if !d.validateStatus(resp.Status) {
		statusErr := &HTTPStatusError{Method: prepared.Method, URL: prepared.URL, Status: resp.Status, Response: resp}
		if resp.Status == http.StatusRequestTimeout {
			timeoutErr := &TimeoutError{Method: prepared.Method, URL: prepared.URL, Err: statusErr}
			return d.retries.onTimeout(ctx, chain, key, req, timeoutErr, redispatch)
		}
		return nil, statusErr
	}

	d.retries.settle(chain, key, true)

	result := &Result{Value: resp.Data, Response: resp}
	if d.hooks.Response != nil {
		if result.Value, err = d.hooks.Response(attemptCtx, resp); err != nil {
			return nil, fmt.Errorf("response hook: %w", err)
		}
	}
	return result, nil
}

// prepare merges headers, rewinds the body and calls the request hook.
func (d *Dispatcher) prepare(ctx context.Context, req *Request, body *requestBody) (*Request, error) {
	prepared := req.clone()
	prepared.Header = mergeHeaders(d.defaultHeader, req.Header)
	if body != nil {
		r, err := body.reader()
		if err != nil {
			return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
		}
		prepared.Body = r
	}
	if d.hooks.Request == nil {
		return prepared, nil
	}
	hooked, err := d.hooks.Request(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("request hook: %w", err)
	}
	if hooked == nil {
		return nil, fmt.Errorf("request hook: nil request returned")
	}
	return hooked, nil
}

// send sends the request via the transport limiting the attempt by the request timeout.
// Timeouts are reported as *TimeoutError, other errors are converted to *TransportError.
func (d *Dispatcher) send(ctx context.Context, req *Request, chain *dispatchChain) (*Response, error) {
	sendCtx := httpclient.NewContextWithLogger(httpclient.NewContextWithRequestID(ctx, chain.requestID), chain.logger)
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, d.requestTimeout)
		defer cancel()
	}

	resp, err := d.transport.Send(sendCtx, req)
	if err == nil {
		if resp == nil {
			return nil, &TransportError{Method: req.Method, URL: req.URL, Err: errors.New("no response")}
		}
		return resp, nil
	}
	if isTimeout(err) || (ctx.Err() == nil && sendCtx.Err() != nil) {
		var timeoutErr *TimeoutError
		if !errors.As(err, &timeoutErr) {
			timeoutErr = &TimeoutError{Method: req.Method, URL: req.URL, Timeout: d.requestTimeout, Err: err}
		}
		return nil, timeoutErr
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		transportErr = &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	return nil, transportErr
}

func (d *Dispatcher) release(key Key, owner uint64) {
	d.tables.release(key, owner)
	d.metrics.TableSize(TableInFlight, d.tables.inFlight.Len())
	d.metrics.TableSize(TableDebounced, d.tables.debounced.Len())
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// interruptionError converts the cause of the attempt context cancellation into *CancellationError.
func interruptionError(callerCtx context.Context, req *Request, cause error) error {
	cancelErr := &CancellationError{Method: req.Method, URL: req.URL}
	switch {
	case errors.Is(cause, errSupersededInFlight):
		cancelErr.Reason = ReasonSupersededByNewerRequest
	case errors.Is(cause, errDelaySuperseded):
		cancelErr.Reason = ReasonSupersededByNewerDelayedRequest
	default:
		err := callerCtx.Err()
		if err == nil {
			err = cause
		}
		cancelErr.Reason, cancelErr.Err = err.Error(), err
	}
	return cancelErr
}
