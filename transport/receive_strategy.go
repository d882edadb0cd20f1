// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"sync"

	"github.com/Jeffail/shutdown"

	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/netutil"
)

// ReceiveStrategy reads frames from whatever socket its Connection
// currently holds and delivers the messages inside. A frame is
// delivered whole or not at all: one whose digest does not match is
// treated as a broken socket.
type ReceiveStrategy struct {
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	connection *Connection

	notify  chan struct{}
	shutSig *shutdown.Signaller
}

func newReceiveStrategy(logger *slog.Logger, metrics *Metrics) *ReceiveStrategy {
	r := &ReceiveStrategy{
		logger:  logger,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
		shutSig: shutdown.NewSignaller(),
	}
	go r.loop()
	return r
}

func (r *ReceiveStrategy) attach(connection *Connection) {
	r.mu.Lock()
	r.connection = connection
	r.mu.Unlock()
	r.wake()
}

func (r *ReceiveStrategy) current() *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connection
}

func (r *ReceiveStrategy) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *ReceiveStrategy) stop() {
	r.mu.Lock()
	r.connection = nil
	r.mu.Unlock()
	r.shutSig.TriggerSoftStop()
}

func (r *ReceiveStrategy) loop() {
	defer r.shutSig.TriggerHasStopped()
	for {
		if connection := r.current(); connection != nil {
			if current := connection.currentPeer(); current != nil {
				err := r.read(connection, current)
				if r.shutSig.IsSoftStopSignalled() {
					return
				}
				if r.current() == connection && connection.currentPeer() == current {
					if !netutil.IsExpectedCloseError(err) {
						r.logger.Warn("link read failed", "error", err)
					}
					connection.Relink(true)
				}
			}
		}
		select {
		case <-r.notify:
		case <-r.shutSig.SoftStopChan():
			return
		}
	}
}

// read delivers frames from one socket until it fails.
func (r *ReceiveStrategy) read(connection *Connection, current *peer) error {
	for {
		var frame codec.Frame
		if err := current.decoder.Decode(&frame); err != nil {
			return err
		}
		if frame.Kind != frameData {
			r.logger.Debug("ignoring frame", "kind", frame.Kind)
			continue
		}
		message, err := decodeMessage(frame)
		if err != nil {
			r.logger.Error("dropping corrupt frame", "error", err)
			return err
		}
		r.metrics.received()
		connection.deliver(message)
	}
}
