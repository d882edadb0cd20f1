// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
)

// backpressureMonitor bounds how long one socket write may block. It
// is armed around every write and fires onStall if the write has not
// returned after period.
type backpressureMonitor struct {
	clock  clock.Clock
	period time.Duration
}

// arm starts watching a write. The returned function disarms it and
// must be called when the write returns.
func (m backpressureMonitor) arm(onStall func()) (disarm func()) {
	if m.period <= 0 {
		return func() {}
	}
	timer := m.clock.AfterFunc(m.period, onStall)
	return func() { timer.Stop() }
}
