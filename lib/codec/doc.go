// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec encodes everything that crosses a link: the connection
// handshake, transport messages, and the sample payloads the bridge
// carries inside them.
//
// Values are CBOR with Core Deterministic Encoding (RFC 8949 §4.2), so
// the same sample always produces the same bytes. Stream encoders and
// decoders ([NewEncoder], [NewDecoder]) frame consecutive items on a
// connection without a separate length prefix: a decoder returns an
// item only once all of its bytes have arrived.
//
// A [Frame] wraps one encoded message with an optional compression
// step ([CompressionLZ4] or [CompressionZstd]) and a truncated BLAKE3
// digest of the uncompressed payload. [Frame.Open] refuses a frame
// whose digest does not match, so a receiver delivers a message whole
// or not at all.
package codec
