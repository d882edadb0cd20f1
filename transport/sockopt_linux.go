// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setPlatformOptions bounds how long the kernel keeps unacknowledged
// data before failing the socket, so a peer that stopped reading is
// noticed even while the writer is not blocked.
func setPlatformOptions(conn syscall.Conn, pause time.Duration) error {
	if pause <= 0 {
		return nil
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var optionErr error
	err = raw.Control(func(fd uintptr) {
		optionErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, int(pause.Milliseconds()))
	})
	if err != nil {
		return err
	}
	if optionErr != nil {
		return fmt.Errorf("setting TCP_USER_TIMEOUT: %w", optionErr)
	}
	return nil
}
