// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries sample operations between two endpoints
// over a reliable TCP link that survives socket failures.
//
// A [Transport] keeps at most one [DataLink] per remote address. The
// side that calls [Transport.Connect] dials the peer and is the
// connector; the side that calls [Transport.Accept] waits for the
// connector to dial in through [Transport.Serve] and is the acceptor.
// Every socket starts with a hello frame carrying the connector's
// announced address, which is how the acceptor matches a reconnecting
// peer to its existing link.
//
// Each link's current [Connection] owns a [SendStrategy] and a
// [ReceiveStrategy]. When either sees the socket fail it calls
// [Connection.Relink], and the connection's reconnect task recovers:
//
//   - The connector suspends sending, reports [EventDisconnected] and
//     redials up to ConnRetryAttempts times with exponential backoff.
//     Success reports [EventReconnected] and resumes sending; failure
//     reports [EventLost] and terminates sending. Loss reports within
//     two seconds of a successful reconnect are ignored.
//   - The acceptor reports [EventDisconnected] and waits up to
//     PassiveReconnectDuration. If the connector's new socket arrives
//     in time, the new Connection takes over the link through
//     [Connection.Transfer] and the link hears [EventReconnected];
//     otherwise it hears [EventLost].
//
// A frame write blocked for longer than MaxOutputPausePeriod declares
// the link lost through [Connection.NotifyLostOnBackpressureTimeout].
//
// Messages travel as deterministic CBOR inside digest-checked,
// optionally compressed frames (see lib/codec), and arriving messages
// go to the transport's [Deliverer]. A [Registry] holds named
// transports for a process.
package transport
