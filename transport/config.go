// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/config"
)

// Config holds the knobs of one Transport. It is copied into every
// connection the transport creates and never changes afterwards.
type Config struct {
	// EnableNagle leaves Nagle's algorithm on for link sockets.
	EnableNagle bool

	// ConnRetryInitialDelay is the wait after the first failed
	// reconnect attempt on the connector side.
	ConnRetryInitialDelay time.Duration

	// ConnRetryBackoffMultiplier scales the wait after each further
	// failed attempt.
	ConnRetryBackoffMultiplier float64

	// ConnRetryAttempts bounds reconnect attempts. Zero means the first
	// disconnect is final.
	ConnRetryAttempts int

	// MaxOutputPausePeriod is how long one frame write may block before
	// the link is declared lost. Zero disables the check.
	MaxOutputPausePeriod time.Duration

	// PassiveReconnectDuration is how long the acceptor side waits for
	// the connector to come back. Zero means the first disconnect is
	// final.
	PassiveReconnectDuration time.Duration

	// PassiveConnectDuration bounds Accept. Zero waits forever.
	PassiveConnectDuration time.Duration

	// LocalAddress is announced to the peers this transport connects
	// to; it must be an address the peer can reach us on.
	LocalAddress string

	// SocketBufferSize sets both socket buffers when positive.
	SocketBufferSize int

	// Compression applies to data frames.
	Compression codec.Compression

	// SendQueueLimit bounds the frames waiting on one link. Zero means
	// no bound.
	SendQueueLimit int
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		ConnRetryInitialDelay:      500 * time.Millisecond,
		ConnRetryBackoffMultiplier: 2,
		ConnRetryAttempts:          3,
		PassiveReconnectDuration:   2 * time.Second,
		PassiveConnectDuration:     10 * time.Second,
	}
}

// ConfigFromLink converts the link section of a configuration file.
func ConfigFromLink(link config.LinkConfig) (Config, error) {
	compression, err := codec.ParseCompression(link.Compression)
	if err != nil {
		return Config{}, fmt.Errorf("link compression: %w", err)
	}
	return Config{
		EnableNagle:                link.EnableNagle,
		ConnRetryInitialDelay:      config.Milliseconds(link.ConnRetryInitialDelay),
		ConnRetryBackoffMultiplier: link.ConnRetryBackoffMultiplier,
		ConnRetryAttempts:          link.ConnRetryAttempts,
		MaxOutputPausePeriod:       config.Milliseconds(link.MaxOutputPausePeriod),
		PassiveReconnectDuration:   config.Milliseconds(link.PassiveReconnectDuration),
		PassiveConnectDuration:     config.Milliseconds(link.PassiveConnectDuration),
		LocalAddress:               link.LocalAddress,
		SocketBufferSize:           link.SocketBufferSize,
		Compression:                compression,
		SendQueueLimit:             link.SendQueueLimit,
	}, nil
}
