// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Compile-time interface check.
var _ Dialer = (*TCPDialer)(nil)

// Dialer opens sockets to peers. Tests substitute dialers that fail or
// hand out net.Pipe ends.
type Dialer interface {
	// DialContext opens a connection to the peer at address, as the
	// peer's listener reported it.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (net.Conn, error)

// DialContext calls f.
func (f DialerFunc) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return f(ctx, address)
}

// TCPDialer opens TCP connections to peers.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout; only the context
	// deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// ListenTCP opens a TCP listener for Transport.Serve on address
// (e.g. ":7400" or "127.0.0.1:0").
func ListenTCP(address string) (net.Listener, error) {
	return net.Listen("tcp", address)
}
