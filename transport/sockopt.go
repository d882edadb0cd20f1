// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"net"
)

// setSocketOptions applies the link socket options from config.
// Connections that are not TCP (net.Pipe in tests) are left alone.
func setSocketOptions(conn net.Conn, config Config) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	var errs []error
	if err := tcp.SetNoDelay(!config.EnableNagle); err != nil {
		errs = append(errs, err)
	}
	if config.SocketBufferSize > 0 {
		if err := tcp.SetReadBuffer(config.SocketBufferSize); err != nil {
			errs = append(errs, err)
		}
		if err := tcp.SetWriteBuffer(config.SocketBufferSize); err != nil {
			errs = append(errs, err)
		}
	}
	if err := setPlatformOptions(tcp, config.MaxOutputPausePeriod); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
