/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/atomic"
)

// DefaultDNSResolverTimeout is a default timeout of a connection to the DNS server.
const DefaultDNSResolverTimeout = 5 * time.Second

// NewRoundRobinDNSResolver creates a resolver that sends DNS queries to the given servers ("host:port")
// in round-robin order instead of the servers configured in the system.
func NewRoundRobinDNSResolver(addrs []string, timeout time.Duration) (*net.Resolver, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("at least one DNS server address must be specified")
	}
	for _, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("invalid DNS server address %q: %w", addr, err)
		}
	}
	if timeout <= 0 {
		timeout = DefaultDNSResolverTimeout
	}
	servers := append([]string(nil), addrs...)
	var next atomic.Uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := servers[(next.Inc()-1)%uint32(len(servers))] //nolint:gosec // server count is reasonable
			return d.DialContext(ctx, network, addr)
		},
	}, nil
}

// newDelegateTransport returns a clone of http.DefaultTransport that resolves hosts with the resolver.
func newDelegateTransport(resolver *net.Resolver) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if resolver != nil {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Resolver: resolver}
		tr.DialContext = dialer.DialContext
	}
	return tr
}
