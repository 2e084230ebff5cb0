/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const adaptiveRateLimitHeader = "X-Rate-Limit"

type responseInfo struct {
	resp       *http.Response
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func doGet(c *http.Client, url string) responseInfo {
	startedAt := time.Now()
	resp, err := c.Get(url)
	finishedAt := time.Now()
	if err == nil {
		_ = resp.Body.Close()
	}
	return responseInfo{resp, err, startedAt, finishedAt}
}

func newRateLimitingTestServer() *httptest.Server {
	router := chi.NewRouter()
	router.Get("/", func(rw http.ResponseWriter, r *http.Request) {
		if rl := r.URL.Query().Get("rateLimit"); rl != "" {
			rw.Header().Set(adaptiveRateLimitHeader, rl)
		}
		_, _ = rw.Write([]byte("ok"))
	})
	return httptest.NewServer(router)
}

func TestNewRateLimitingRoundTripper(t *testing.T) {
	tests := []struct {
		Name       string
		RateLimit  int
		Opts       RateLimitingRoundTripperOpts
		WantErrMsg string
	}{
		{Name: "rate limit is negative", RateLimit: -1, WantErrMsg: "rate limit must be positive"},
		{Name: "rate limit is zero", RateLimit: 0, WantErrMsg: "rate limit must be positive"},
		{
			Name:       "burst is negative",
			RateLimit:  1,
			Opts:       RateLimitingRoundTripperOpts{Burst: -1},
			WantErrMsg: "burst must be positive",
		},
		{
			Name:       "slack percent > 100",
			RateLimit:  1,
			Opts:       RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: 101}},
			WantErrMsg: "slack percent must be in range [0..100]",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, tt.RateLimit, tt.Opts)
			require.EqualError(t, err, tt.WantErrMsg)
		})
	}

	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 10)
	require.NoError(t, err)
	require.Equal(t, DefaultRateLimitingBurst, rt.Burst)
	require.Equal(t, DefaultRateLimitingWaitTimeout, rt.WaitTimeout)
}

func TestRateLimitingRoundTripper_RoundTrip(t *testing.T) {
	const allowedTimeDeviation = time.Millisecond * 100

	server := newRateLimitingTestServer()
	defer server.Close()

	makeClient := func(rateLimit int, waitTimeout time.Duration) *http.Client {
		tr, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, rateLimit,
			RateLimitingRoundTripperOpts{WaitTimeout: waitTimeout})
		require.NoError(t, err)
		return &http.Client{Transport: tr}
	}

	t.Run("waiting rate limit is timed out for the 2nd request", func(t *testing.T) {
		client := makeClient(1, time.Millisecond*500)

		respInfo := doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, allowedTimeDeviation)

		respInfo = doGet(client, server.URL)
		require.True(t, IsRateLimitingWaitError(respInfo.err))
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, allowedTimeDeviation,
			"error about too many requests should be returned immediately")
	})

	t.Run("requests are throttled", func(t *testing.T) {
		const rateLimit = 4

		client := makeClient(rateLimit, time.Second*2)
		batchStartedAt := time.Now()
		var wg sync.WaitGroup
		errs := make(chan error, rateLimit)
		for i := 0; i < rateLimit; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- doGet(client, server.URL).err
			}()
		}
		wg.Wait()
		close(errs)

		require.WithinDuration(t, batchStartedAt.Add(time.Second-time.Second/rateLimit), time.Now(), allowedTimeDeviation)
		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("canceled context is not a rate limiting error", func(t *testing.T) {
		client := makeClient(1, time.Second*2)
		require.NoError(t, doGet(client, server.URL).err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		time.AfterFunc(50*time.Millisecond, cancel)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = client.Do(req)
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, IsRateLimitingWaitError(err))
	})
}

func TestRateLimitingRoundTripper_RoundTrip_Adaptation(t *testing.T) {
	server := newRateLimitingTestServer()
	defer server.Close()

	makeAdaptiveClient := func(rateLimit int, respSlackPercent int) (*http.Client, *RateLimitingRoundTripper) {
		tr, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, rateLimit, RateLimitingRoundTripperOpts{
			Adaptation: RateLimitingRoundTripperAdaptation{
				ResponseHeaderName: adaptiveRateLimitHeader,
				SlackPercent:       respSlackPercent,
			},
		})
		require.NoError(t, err)
		return &http.Client{Transport: tr}, tr
	}

	tests := []struct {
		name      string
		rateLimit int
		slack     int
		query     string
		wantLimit rate.Limit
	}{
		{"lowered by response", 10, 0, "?rateLimit=5", 5},
		{"not greater than initial", 10, 0, "?rateLimit=20", 10},
		{"slack percent", 10, 20, "?rateLimit=10", 8},
		{"invalid value", 100, 0, "?rateLimit=foobar", 100},
		{"negative value", 100, 0, "?rateLimit=-1", 100},
		{"zero value", 10, 0, "?rateLimit=0", 1},
		{"no header", 10, 0, "", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := makeAdaptiveClient(tt.rateLimit, tt.slack)
			respInfo := doGet(client, server.URL+"/"+tt.query)
			require.NoError(t, respInfo.err)
			require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
			require.Equal(t, tt.wantLimit, transport.limiter.Limit())
			require.Equal(t, tt.rateLimit, transport.RateLimit)
		})
	}

	t.Run("limit is restored", func(t *testing.T) {
		client, transport := makeAdaptiveClient(10, 0)
		require.NoError(t, doGet(client, server.URL+"/?rateLimit=5").err)
		require.Equal(t, rate.Limit(5), transport.limiter.Limit())
		require.NoError(t, doGet(client, server.URL+"/").err)
		require.Equal(t, rate.Limit(10), transport.limiter.Limit())
	})
}
