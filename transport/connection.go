// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/jobqueue"
)

// ReconnectState is where a Connection is in recovering from a lost
// socket.
type ReconnectState int32

const (
	// StateInit is a healthy connection, or one whose loss has not
	// been handled yet.
	StateInit ReconnectState = iota
	// StateReconnected means the connection recovered. On the connector
	// side a later loss moves it back to StateInit once the reconnect
	// cooldown has passed.
	StateReconnected
	// StateLost is terminal for this Connection.
	StateLost
	// StatePassiveWaiting is the acceptor waiting for the connector to
	// come back.
	StatePassiveWaiting
	// StatePassiveTimeoutCalled means the passive wait expired and the
	// loss is about to be declared.
	StatePassiveTimeoutCalled
)

func (s ReconnectState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReconnected:
		return "reconnected"
	case StateLost:
		return "lost"
	case StatePassiveWaiting:
		return "passive-waiting"
	case StatePassiveTimeoutCalled:
		return "passive-timeout-called"
	default:
		return fmt.Sprintf("ReconnectState(%d)", int32(s))
	}
}

// reconnectDelay is the cooldown after a successful connector
// reconnect. Loss reports arriving within it describe the socket that
// was just replaced and are ignored.
const reconnectDelay = 2 * time.Second

// peer is the socket a Connection currently moves bytes over. The
// decoder stays with the socket because it buffers past frame
// boundaries.
type peer struct {
	conn    net.Conn
	decoder *codec.Decoder
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, decoder: codec.NewDecoder(conn)}
}

// Connection is one end of a link's socket plus the state needed to
// recover it. The connector side redials the peer when the socket
// fails; the acceptor side waits for the connector to come back, and
// the freshly accepted Connection then takes over this one's
// strategies through Transfer.
//
// A Connection owns its send and receive strategies. The strategies
// point back at whichever Connection currently owns them.
type Connection struct {
	transport     *Transport
	logger        *slog.Logger
	clock         clock.Clock
	config        Config
	metrics       *Metrics
	remoteAddress string
	connector     bool

	ctx        context.Context
	cancel     context.CancelFunc
	reconnects *jobqueue.Queue

	// reconnectMu serializes the reconnect state machine. The connector
	// holds it across backoff sleeps, so nothing on the data path may
	// take it.
	reconnectMu            sync.Mutex
	state                  ReconnectState
	lastReconnectAttempted time.Time
	passiveTimer           *clock.Timer
	shutdown               bool
	previous               *Connection
	next                   *Connection

	// stateValue mirrors state for lock-free reads.
	stateValue atomic.Int32

	// mu guards the fields below. It is never held while taking
	// reconnectMu.
	mu      sync.Mutex
	peer    *peer
	link    *DataLink
	send    *SendStrategy
	receive *ReceiveStrategy
}

func (t *Transport) newConnection(remoteAddress string, connector bool, p *peer) *Connection {
	role := "acceptor"
	if connector {
		role = "connector"
	}
	logger := t.logger.With("remote", remoteAddress, "role", role)
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		transport:     t,
		logger:        logger,
		clock:         t.clock,
		config:        t.config,
		metrics:       t.metrics,
		remoteAddress: remoteAddress,
		connector:     connector,
		ctx:           ctx,
		cancel:        cancel,
		reconnects:    jobqueue.New(logger),
		peer:          p,
	}
}

// RemoteAddress returns the peer's announced address.
func (c *Connection) RemoteAddress() string { return c.remoteAddress }

// IsConnector reports whether this side dialed the socket.
func (c *Connection) IsConnector() bool { return c.connector }

// State returns the current reconnect state.
func (c *Connection) State() ReconnectState {
	return ReconnectState(c.stateValue.Load())
}

// Previous returns the Connection this one took over from, if any.
func (c *Connection) Previous() *Connection {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.previous
}

// Next returns the Connection this one handed its link to, if any.
func (c *Connection) Next() *Connection {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.next
}

func (c *Connection) setStateLocked(state ReconnectState) {
	if c.state == state {
		return
	}
	c.logger.Debug("reconnect state changed", "from", c.state, "to", state)
	c.state = state
	c.stateValue.Store(int32(state))
	c.metrics.transition(state)
}

// adopt installs the link and strategies and points the strategies
// at c.
func (c *Connection) adopt(link *DataLink, send *SendStrategy, receive *ReceiveStrategy) {
	c.mu.Lock()
	c.link, c.send, c.receive = link, send, receive
	c.mu.Unlock()
	send.attach(c)
	receive.attach(c)
}

func (c *Connection) dataLink() *DataLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Connection) sendStrategy() *SendStrategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send
}

func (c *Connection) currentPeer() *peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// setPeer replaces the socket and wakes the strategies so they move to
// it.
func (c *Connection) setPeer(p *peer) {
	c.mu.Lock()
	old := c.peer
	c.peer = p
	send, receive := c.send, c.receive
	c.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
	if send != nil {
		send.wake()
	}
	if receive != nil {
		receive.wake()
	}
}

// closePeer drops the socket. Strategy errors from the closed socket
// no longer match the current peer and are ignored.
func (c *Connection) closePeer() {
	c.mu.Lock()
	old := c.peer
	c.peer = nil
	c.mu.Unlock()
	if old != nil {
		old.conn.Close()
	}
}

func (c *Connection) notify(event Event) {
	if link := c.dataLink(); link != nil {
		link.notify(event)
	}
}

func (c *Connection) deliver(message Message) {
	if link := c.dataLink(); link != nil {
		link.deliver(message)
	}
}

func (c *Connection) terminateSend() {
	if send := c.sendStrategy(); send != nil {
		send.TerminateSend()
	}
}

// Relink reports that the socket failed. With suspend set, sending is
// suspended immediately; either way the reconnect task runs the
// recovery for this side.
func (c *Connection) Relink(suspend bool) {
	if suspend {
		if send := c.sendStrategy(); send != nil {
			send.SuspendSend()
		}
	}
	c.metrics.relink()
	c.reconnects.Enqueue(c.reconnect)
}

// close tears the connection down for good: pending reconnect work is
// dropped, the socket is closed and owned strategies are stopped. It
// must not run on the reconnect task, which includes LinkListener
// callbacks.
func (c *Connection) close() {
	c.cancel()
	c.reconnects.Close()

	c.reconnectMu.Lock()
	c.shutdown = true
	if c.passiveTimer != nil {
		c.passiveTimer.Stop()
	}
	c.reconnectMu.Unlock()

	c.mu.Lock()
	send, receive := c.send, c.receive
	c.send, c.receive = nil, nil
	c.mu.Unlock()

	c.closePeer()
	if send != nil {
		send.stop()
	}
	if receive != nil {
		receive.stop()
	}
}
