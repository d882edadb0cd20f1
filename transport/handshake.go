// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/netutil"
)

// handshakeTimeout bounds the hello exchange on a fresh socket. A peer
// that connects and says nothing is dropped after this long.
const handshakeTimeout = 10 * time.Second

// hello is the first frame the connector sends on every socket,
// including each reconnect. Address is the connector's announced local
// address, which the acceptor uses as the link's remote address so the
// reconnect finds the existing link.
type hello struct {
	Address string `cbor:"address"`
}

// writeHello sends the hello frame. The connector never reads before
// data frames, so nothing else happens on the socket until this
// returns.
func writeHello(conn net.Conn, localAddress string) error {
	payload, err := codec.Marshal(hello{Address: localAddress})
	if err != nil {
		return err
	}
	frame, err := codec.SealFrame(frameHello, payload, codec.CompressionNone)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	if err := codec.NewEncoder(conn).Encode(frame); err != nil {
		return fmt.Errorf("%w: sending hello: %v", ErrHandshake, err)
	}
	return nil
}

// readHello reads the connector's hello, waiting at most timeout for
// it. The returned decoder has already buffered bytes past the hello,
// so the receive strategy must keep reading through it rather than
// through conn. A peer that stays silent yields an error that is both
// ErrHandshake and a timeout.
func readHello(conn net.Conn, timeout time.Duration) (hello, *codec.Decoder, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	decoder := codec.NewDecoder(conn)
	var frame codec.Frame
	if err := decoder.Decode(&frame); err != nil {
		if netutil.IsTimeout(err) {
			return hello{}, nil, fmt.Errorf("%w: no hello within %v: %w", ErrHandshake, timeout, err)
		}
		return hello{}, nil, fmt.Errorf("%w: reading hello: %v", ErrHandshake, err)
	}
	if frame.Kind != frameHello {
		return hello{}, nil, fmt.Errorf("%w: first frame has kind %d", ErrHandshake, frame.Kind)
	}
	payload, err := frame.Open()
	if err != nil {
		return hello{}, nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	var message hello
	if err := codec.Unmarshal(payload, &message); err != nil {
		return hello{}, nil, fmt.Errorf("%w: decoding hello: %v", ErrHandshake, err)
	}
	if message.Address == "" {
		return hello{}, nil, fmt.Errorf("%w: hello carries no address", ErrHandshake)
	}
	return message, decoder, nil
}
