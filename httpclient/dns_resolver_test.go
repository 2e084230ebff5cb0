/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRoundRobinDNSResolver(t *testing.T) {
	t.Run("invalid addresses", func(t *testing.T) {
		_, err := NewRoundRobinDNSResolver(nil, time.Second)
		require.EqualError(t, err, "at least one DNS server address must be specified")

		_, err = NewRoundRobinDNSResolver([]string{"127.0.0.1"}, time.Second)
		require.ErrorContains(t, err, `invalid DNS server address "127.0.0.1"`)
	})

	t.Run("queries are distributed between servers", func(t *testing.T) {
		const serversNum = 2
		received := make(chan int, 100)
		addrs := make([]string, 0, serversNum)
		for i := 0; i < serversNum; i++ {
			conn, err := net.ListenPacket("udp", "127.0.0.1:0")
			require.NoError(t, err)
			defer func() { _ = conn.Close() }()
			addrs = append(addrs, conn.LocalAddr().String())
			go func(idx int) {
				buf := make([]byte, 512)
				for {
					if _, _, err := conn.ReadFrom(buf); err != nil {
						return
					}
					received <- idx
				}
			}(i)
		}

		resolver, err := NewRoundRobinDNSResolver(addrs, time.Second)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_, err = resolver.LookupHost(ctx, "reqflow.test")
		require.Error(t, err) // Servers never answer.

		seen := make(map[int]bool)
		require.Eventually(t, func() bool {
			for {
				select {
				case idx := <-received:
					seen[idx] = true
				default:
					return len(seen) == serversNum
				}
			}
		}, time.Second, 10*time.Millisecond)
	})
}

func TestNewWithOpts_DNSResolver(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.DNSResolver.Addresses = []string{"127.0.0.1:53"}
	client, err := NewWithOpts(cfg, Opts{})
	require.NoError(t, err)
	require.NotNil(t, client.Transport)

	cfg.DNSResolver.Addresses = []string{"localhost"}
	_, err = NewWithOpts(cfg, Opts{})
	require.ErrorContains(t, err, "create dns resolver: invalid DNS server address")
}
