// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jeffail/shutdown"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
	"github.com/OpenDDS/OpenDDS-sub024/lib/netutil"
)

// SendMode is whether a SendStrategy is moving frames.
type SendMode int

const (
	// ModeActive writes queued frames as fast as the socket takes them.
	ModeActive SendMode = iota
	// ModeSuspended keeps frames queued while the link recovers.
	ModeSuspended
	// ModeTerminated rejects every frame; the link is lost.
	ModeTerminated
)

func (m SendMode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeSuspended:
		return "suspended"
	case ModeTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("SendMode(%d)", int(m))
	}
}

// SendStrategy queues encoded frames for a link and writes them to
// whatever socket its Connection currently holds. A write failure puts
// the frame back at the head of the queue and reports the loss through
// Connection.Relink.
type SendStrategy struct {
	logger  *slog.Logger
	metrics *Metrics
	limit   int
	monitor backpressureMonitor

	mu         sync.Mutex
	connection *Connection
	mode       SendMode
	queue      [][]byte

	notify  chan struct{}
	shutSig *shutdown.Signaller
}

func newSendStrategy(logger *slog.Logger, clk clock.Clock, config Config, metrics *Metrics) *SendStrategy {
	s := &SendStrategy{
		logger:  logger,
		metrics: metrics,
		limit:   config.SendQueueLimit,
		monitor: backpressureMonitor{clock: clk, period: config.MaxOutputPausePeriod},
		notify:  make(chan struct{}, 1),
		shutSig: shutdown.NewSignaller(),
	}
	go s.loop()
	return s
}

// Send queues one encoded frame.
func (s *SendStrategy) Send(frame []byte) error {
	s.mu.Lock()
	switch {
	case s.mode == ModeTerminated:
		s.mu.Unlock()
		return ErrSendTerminated
	case s.limit > 0 && len(s.queue) >= s.limit:
		s.mu.Unlock()
		return ErrSendQueueFull
	}
	s.queue = append(s.queue, frame)
	active := s.mode == ModeActive
	s.mu.Unlock()

	s.metrics.queued(1)
	if active {
		s.wake()
	}
	return nil
}

// Mode returns the current mode.
func (s *SendStrategy) Mode() SendMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// QueueLen returns the number of frames waiting.
func (s *SendStrategy) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SuspendSend stops writing and keeps new frames queued.
func (s *SendStrategy) SuspendSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeActive {
		s.mode = ModeSuspended
	}
}

// ResumeSend returns a suspended strategy to ModeActive.
func (s *SendStrategy) ResumeSend() {
	s.mu.Lock()
	resumed := s.mode == ModeSuspended
	if resumed {
		s.mode = ModeActive
	}
	s.mu.Unlock()
	if resumed {
		s.wake()
	}
}

// TerminateSend drops every queued frame and rejects later ones.
func (s *SendStrategy) TerminateSend() {
	s.mu.Lock()
	if s.mode == ModeTerminated {
		s.mu.Unlock()
		return
	}
	s.mode = ModeTerminated
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.metrics.queued(-dropped)
	s.metrics.terminated()
	if dropped > 0 {
		s.logger.Info("send terminated with queued frames", "dropped", dropped)
	}
}

// revive lets a terminated strategy carry frames again after a lost
// link came back.
func (s *SendStrategy) revive() {
	s.mu.Lock()
	if s.mode == ModeTerminated {
		s.mode = ModeSuspended
	}
	s.mu.Unlock()
}

func (s *SendStrategy) attach(connection *Connection) {
	s.mu.Lock()
	s.connection = connection
	s.mu.Unlock()
	s.wake()
}

func (s *SendStrategy) attachedTo(connection *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection == connection
}

func (s *SendStrategy) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// stop ends the writer goroutine and detaches from the connection.
func (s *SendStrategy) stop() {
	s.mu.Lock()
	s.connection = nil
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()
	s.metrics.queued(-dropped)
	s.shutSig.TriggerSoftStop()
}

func (s *SendStrategy) loop() {
	defer s.shutSig.TriggerHasStopped()
	for {
		select {
		case <-s.notify:
		case <-s.shutSig.SoftStopChan():
			return
		}
		for s.writeNext() {
		}
	}
}

// writeNext writes the head of the queue if the strategy is active and
// has a socket. It reports whether it wrote a frame.
func (s *SendStrategy) writeNext() bool {
	s.mu.Lock()
	connection := s.connection
	if s.mode != ModeActive || len(s.queue) == 0 || connection == nil {
		s.mu.Unlock()
		return false
	}
	current := connection.currentPeer()
	if current == nil {
		s.mu.Unlock()
		return false
	}
	frame := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.mu.Unlock()

	disarm := s.monitor.arm(connection.NotifyLostOnBackpressureTimeout)
	_, err := current.conn.Write(frame)
	disarm()

	if err == nil {
		s.metrics.queued(-1)
		s.metrics.sent(len(frame))
		return true
	}

	s.mu.Lock()
	if s.mode == ModeTerminated {
		s.metrics.queued(-1)
	} else {
		s.queue = append([][]byte{frame}, s.queue...)
	}
	attached := s.connection == connection
	s.mu.Unlock()

	if !netutil.IsExpectedCloseError(err) {
		s.logger.Warn("frame write failed", "error", err)
	}
	if attached && connection.currentPeer() == current {
		connection.Relink(true)
	}
	return false
}
