// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the wall-clock safety valves used by the
// transport and cache tests.
//
// Tests drive timing through a fake clock; the only real timeouts in
// the suite live here, so that a broken test fails after a bounded
// wait instead of hanging. [RequireReceive] and [RequireClosed] wait on
// channels, [RequireEventually] polls a condition that some background
// goroutine (a writer loop, a reconnect task) is expected to make true.
//
// All helpers call Fatalf on failure.
package testutil
