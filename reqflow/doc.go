/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package reqflow orchestrates outgoing requests in front of an HTTP client.
//
// Every request is identified by a Key derived from its URL and method. Depending on the request Policy
// the Dispatcher cancels the in-flight request with the same key, delays sending (only the latest
// delayed request is sent), or suppresses duplicates while the request with the same key is in progress.
// Timed out requests are reconnected up to the configured number of times, and lifecycle callbacks
// (TryBegin, TrySuccess, TryFail) report when reconnection starts and ends.
//
// Dispatch blocks until the result is ready:
//
//	client, err := reqflow.NewClient(cfg, reqflow.ClientOpts{Logger: logger})
//	if err != nil {
//		return err
//	}
//	res, err := client.Get(ctx, "/users", url.Values{"page": {"1"}}, reqflow.Policy{Shake: true}, nil)
//	if err != nil {
//		if reqflow.IsCancellation(err) {
//			return nil
//		}
//		return err
//	}
package reqflow
