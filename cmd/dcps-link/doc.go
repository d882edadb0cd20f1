// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Dcps-link runs one end of a reliable TCP link carrying sensor
// readings between two processes.
//
// In publish mode it connects to --peer and writes a reading on every
// --interval tick. In subscribe mode it listens on the configured
// address, accepts links from every --peer, applies the received
// samples to a local reader cache, and logs each sample it takes.
// Losing a link unregisters that publisher's instances, so the reader
// sees them go NOT_ALIVE_NO_WRITERS.
//
// Configuration comes from --config or the DCPS_CONFIG environment
// variable (YAML or JSONC). With neither, built-in defaults apply and
// access is unrestricted. A Prometheus endpoint is served when
// metrics.address is set.
package main
