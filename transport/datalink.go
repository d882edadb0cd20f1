// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"log/slog"
	"sync"
)

// Event is a change in a link's health, reported to LinkListeners.
type Event int

const (
	// EventDisconnected: the socket failed and recovery has started.
	EventDisconnected Event = iota + 1
	// EventReconnected: a new socket carries the link again.
	EventReconnected
	// EventLost: recovery gave up.
	EventLost
)

func (e Event) String() string {
	switch e {
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventLost:
		return "lost"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// LinkListener hears a link's events. LinkEvent runs on the link's
// reconnect task with the reconnect state locked; it must return
// promptly. Apart from RemoteAddress and LastEvent it must not call
// back into the link or its transport.
type LinkListener interface {
	LinkEvent(link *DataLink, event Event)
}

// LinkListenerFunc adapts a function to LinkListener.
type LinkListenerFunc func(link *DataLink, event Event)

// LinkEvent calls f.
func (f LinkListenerFunc) LinkEvent(link *DataLink, event Event) { f(link, event) }

// DataLink is the long-lived association with one remote address. It
// survives reconnects: the Connection underneath may be replaced, but
// the strategies, queued frames and listeners stay with the link.
type DataLink struct {
	transport     *Transport
	logger        *slog.Logger
	remoteAddress string

	mu         sync.Mutex
	connection *Connection
	closed     bool

	listenersMu sync.Mutex
	listeners   []LinkListener
	lastEvent   Event
}

// newLink wraps connection in a link and starts its strategies.
func (t *Transport) newLink(remoteAddress string, connection *Connection) *DataLink {
	link := &DataLink{
		transport:     t,
		logger:        t.logger.With("link", remoteAddress),
		remoteAddress: remoteAddress,
		connection:    connection,
	}
	connection.adopt(link,
		newSendStrategy(link.logger, t.clock, t.config, t.metrics),
		newReceiveStrategy(link.logger, t.metrics),
	)
	return link
}

// RemoteAddress returns the peer's address.
func (l *DataLink) RemoteAddress() string { return l.remoteAddress }

// Connection returns the connection currently carrying the link.
func (l *DataLink) Connection() *Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connection
}

// Lost reports whether the link's connection has given up. A lost
// link never carries data again unless the peer reconnects to an
// acceptor.
func (l *DataLink) Lost() bool {
	return l.Connection().State() == StateLost
}

// AddListener registers listener for this link's events.
func (l *DataLink) AddListener(listener LinkListener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// LastEvent returns the most recent event, or zero if there was none.
func (l *DataLink) LastEvent() Event {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	return l.lastEvent
}

// Send encodes message and queues it for the peer.
func (l *DataLink) Send(message Message) error {
	frame, err := encodeMessage(message, l.transport.config.Compression)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	send := l.connection.sendStrategy()
	l.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	return send.Send(frame)
}

// Reconnect moves the link onto connection, freshly accepted from the
// same peer.
func (l *DataLink) Reconnect(connection *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		connection.close()
		return
	}
	if l.connection == connection {
		l.logger.Error("reconnect with the connection the link already holds")
		return
	}
	old := l.connection
	old.Transfer(connection)
	l.connection = connection
}

// Close tears the link down and forgets it in its transport. It must
// not be called from a LinkListener.
func (l *DataLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	connection := l.connection
	l.mu.Unlock()

	l.transport.forgetLink(l)
	connection.close()
	return nil
}

func (l *DataLink) notify(event Event) {
	l.transport.metrics.event(event)
	l.listenersMu.Lock()
	l.lastEvent = event
	listeners := append([]LinkListener(nil), l.listeners...)
	l.listenersMu.Unlock()
	for _, listener := range listeners {
		listener.LinkEvent(l, event)
	}
}

func (l *DataLink) deliver(message Message) {
	deliverer := l.transport.deliverer
	if deliverer == nil {
		l.logger.Debug("no deliverer, dropping message", "topic", message.Topic)
		return
	}
	deliverer.Deliver(message, l.remoteAddress)
}
