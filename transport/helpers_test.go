// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testRemote = "peer.example:7400"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	config := DefaultConfig()
	config.LocalAddress = "local.example:7400"
	return config
}

// eventRecorder is a LinkListener that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 32)}
}

func (r *eventRecorder) LinkEvent(_ *DataLink, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.ch <- event
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) require(t *testing.T, want Event) {
	t.Helper()
	got := testutil.RequireReceive(t, r.ch, 5*time.Second, "waiting for %v", want)
	if got != want {
		t.Fatalf("event = %v, want %v", got, want)
	}
}

// dialedPeer is the far end of a socket handed out by pipeDialer,
// after its hello has been read.
type dialedPeer struct {
	conn    net.Conn
	decoder *codec.Decoder
	address string
}

// pipeDialer hands out net.Pipe ends, or fails every dial.
type pipeDialer struct {
	fail bool

	mu     sync.Mutex
	calls  int
	dialed chan dialedPeer
}

func newPipeDialer(fail bool) *pipeDialer {
	return &pipeDialer{fail: fail, dialed: make(chan dialedPeer, 8)}
}

func (d *pipeDialer) DialContext(_ context.Context, _ string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.fail {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	go func() {
		greeting, decoder, err := readHello(server, handshakeTimeout)
		if err != nil {
			server.Close()
			return
		}
		d.dialed <- dialedPeer{conn: server, decoder: decoder, address: greeting.Address}
	}()
	return client, nil
}

func (d *pipeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// messageSink is a Deliverer that forwards to a channel.
type messageSink chan Message

func (s messageSink) Deliver(message Message, _ string) { s <- message }

func newTestTransport(t *testing.T, config Config, options Options) *Transport {
	t.Helper()
	if options.Logger == nil {
		options.Logger = discardLogger()
	}
	transport, err := New(config, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { transport.Close() })
	return transport
}

// pipeLink installs a link to testRemote over one end of a net.Pipe.
// It returns the link, its connection, the other end of the pipe and a
// recorder of the link's events.
func pipeLink(t *testing.T, transport *Transport, connector bool) (*DataLink, *Connection, net.Conn, *eventRecorder) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	connection := transport.newConnection(testRemote, connector, newPeer(local))
	link := transport.newLink(testRemote, connection)
	transport.linksMu.Lock()
	transport.links[testRemote] = link
	transport.linksMu.Unlock()

	events := newEventRecorder()
	link.AddListener(events)
	return link, connection, remote, events
}

// drainReconnects waits until every reconnect job queued so far has
// run.
func drainReconnects(t *testing.T, connection *Connection) {
	t.Helper()
	done := make(chan struct{})
	if !connection.reconnects.Enqueue(func() { close(done) }) {
		return
	}
	testutil.RequireClosed(t, done, 5*time.Second, "waiting for the reconnect task")
}

func readMessage(t *testing.T, decoder *codec.Decoder) Message {
	t.Helper()
	var frame codec.Frame
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	message, err := decodeMessage(frame)
	if err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	return message
}

func writeMessage(t *testing.T, conn net.Conn, message Message) {
	t.Helper()
	frame, err := encodeMessage(message, codec.CompressionNone)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func newFakeClock() *clock.FakeClock { return clock.Fake(epoch) }
