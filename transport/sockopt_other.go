// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package transport

import (
	"syscall"
	"time"
)

// setPlatformOptions has nothing to set outside Linux; the
// backpressure monitor alone bounds stalled writes.
func setPlatformOptions(syscall.Conn, time.Duration) error { return nil }
