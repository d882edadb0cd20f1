// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for the sample cache and the
// reliable transport.
//
// Reconnect backoff, the two-second reconnect cooldown, the passive
// reconnect timer, the output pause period and sample timestamps all
// read time through a [Clock]. Production code uses [Real]. Tests use
// [Fake], which only moves when [FakeClock.Advance] is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	connection := transport.NewConnection(..., transport.WithClock(c))
//	c.WaitForTimers(1)         // the passive timer is armed
//	c.Advance(5 * time.Second) // and fires now
//
// Pending timers live in a deadline-ordered heap. Advance fires them
// in deadline order (registration order breaks ties) and moves Now to
// each deadline before firing, so callbacks observe the time they were
// scheduled for.
package clock
