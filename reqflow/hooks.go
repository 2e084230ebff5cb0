/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"context"
	"fmt"

	"github.com/acronis/go-reqflow/log"
)

// RequestHook is called before the request is sent. It may return a replacement of the request
// or an error that becomes the error of the dispatch.
type RequestHook func(ctx context.Context, req *Request) (*Request, error)

// ResponseHook converts the successful response into the value returned to the caller.
type ResponseHook func(ctx context.Context, resp *Response) (interface{}, error)

// Hooks are optional application callbacks. Nil hooks are skipped.
type Hooks struct {
	Request  RequestHook
	Response ResponseHook

	// TryBegin is called when the first request starts reconnecting (the retry table becomes non-empty).
	TryBegin func()

	// TrySuccess is called when the last reconnecting request succeeded (the retry table becomes empty).
	TrySuccess func()

	// TryFail is called when the last reconnecting request ended without success (the retry table becomes empty).
	TryFail func()
}

// notify calls the lifecycle callback recovering from panic.
func notify(logger log.FieldLogger, name string, callback func()) {
	if callback == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error(fmt.Sprintf("%s callback panicked", name), log.Any("panic", p))
		}
	}()
	callback()
}
