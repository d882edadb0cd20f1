// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/Jeffail/shutdown"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
	"github.com/OpenDDS/OpenDDS-sub024/lib/jobqueue"
	"github.com/OpenDDS/OpenDDS-sub024/lib/netutil"
)

var (
	// ErrTransportClosed is returned by operations on a closed
	// Transport or DataLink.
	ErrTransportClosed = errors.New("transport: closed")

	// ErrPassiveConnectTimeout is returned by Accept when the peer did
	// not connect within PassiveConnectDuration.
	ErrPassiveConnectTimeout = errors.New("transport: peer did not connect in time")

	// ErrSendTerminated is returned by Send on a lost link.
	ErrSendTerminated = errors.New("transport: send terminated")

	// ErrSendQueueFull is returned by Send when SendQueueLimit frames
	// are already waiting.
	ErrSendQueueFull = errors.New("transport: send queue full")

	// ErrNotConnected means no socket could be established.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrHandshake wraps failures of the hello exchange.
	ErrHandshake = errors.New("transport: handshake failed")
)

// Options are the collaborators of a Transport. Every field is
// optional.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Dialer defaults to a TCPDialer.
	Dialer Dialer

	// Metrics may be nil.
	Metrics *Metrics

	// Deliverer receives every message from every link. Messages are
	// dropped when it is nil.
	Deliverer Deliverer
}

// Transport manages the links of one endpoint: at most one DataLink per
// remote address, created by Connect (this side dials) or Accept (the
// peer dials in through Serve).
type Transport struct {
	config    Config
	logger    *slog.Logger
	clock     clock.Clock
	dialer    Dialer
	metrics   *Metrics
	deliverer Deliverer

	linksMu sync.Mutex
	links   map[string]*DataLink
	closed  bool

	// connections holds accepted connections that no Accept has
	// claimed yet. Lock order: linksMu, then connectionsMu.
	connectionsMu      sync.Mutex
	connections        map[string]*Connection
	connectionsUpdated *sync.Cond
	connectionsClosed  bool

	// checker hands connections accepted for an existing link over to
	// that link, off the accept goroutines.
	checker *jobqueue.Queue

	shutSig *shutdown.Signaller
}

// New creates a Transport.
func New(config Config, options Options) (*Transport, error) {
	if config.ConnRetryAttempts < 0 {
		return nil, fmt.Errorf("transport: negative ConnRetryAttempts %d", config.ConnRetryAttempts)
	}
	if config.ConnRetryBackoffMultiplier < 1 {
		return nil, fmt.Errorf("transport: ConnRetryBackoffMultiplier %v is below 1", config.ConnRetryBackoffMultiplier)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Dialer == nil {
		options.Dialer = &TCPDialer{Timeout: handshakeTimeout}
	}
	t := &Transport{
		config:      config,
		logger:      options.Logger,
		clock:       options.Clock,
		dialer:      options.Dialer,
		metrics:     options.Metrics,
		deliverer:   options.Deliverer,
		links:       make(map[string]*DataLink),
		connections: make(map[string]*Connection),
		checker:     jobqueue.New(options.Logger),
		shutSig:     shutdown.NewSignaller(),
	}
	t.connectionsUpdated = sync.NewCond(&t.connectionsMu)
	return t, nil
}

// Config returns the transport's configuration.
func (t *Transport) Config() Config { return t.config }

// Link returns the link to remoteAddress, if there is one.
func (t *Transport) Link(remoteAddress string) (*DataLink, bool) {
	t.linksMu.Lock()
	defer t.linksMu.Unlock()
	link, ok := t.links[remoteAddress]
	return link, ok
}

// Connect returns the link to remoteAddress, dialing it if there is no
// usable one. A lost link is replaced.
func (t *Transport) Connect(ctx context.Context, remoteAddress string) (*DataLink, error) {
	t.linksMu.Lock()
	if t.closed {
		t.linksMu.Unlock()
		return nil, ErrTransportClosed
	}
	if link, ok := t.links[remoteAddress]; ok && !link.Lost() {
		t.linksMu.Unlock()
		return link, nil
	}
	t.linksMu.Unlock()

	conn, err := t.dial(ctx, remoteAddress)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", remoteAddress, err)
	}
	connection := t.newConnection(remoteAddress, true, newPeer(conn))

	t.linksMu.Lock()
	if t.closed {
		t.linksMu.Unlock()
		connection.close()
		return nil, ErrTransportClosed
	}
	existing, ok := t.links[remoteAddress]
	if ok && !existing.Lost() {
		t.linksMu.Unlock()
		connection.close()
		return existing, nil
	}
	link := t.newLink(remoteAddress, connection)
	t.links[remoteAddress] = link
	t.linksMu.Unlock()

	if ok {
		existing.Close()
	}
	t.logger.Info("link connected", "remote", remoteAddress)
	return link, nil
}

// Accept returns the link to remoteAddress, waiting for the peer to
// dial in if there is none. The wait ends with
// ErrPassiveConnectTimeout after PassiveConnectDuration, or when ctx
// ends or the transport closes.
func (t *Transport) Accept(ctx context.Context, remoteAddress string) (*DataLink, error) {
	if link, ok := t.Link(remoteAddress); ok {
		return link, nil
	}

	connection, err := t.waitForConnection(ctx, remoteAddress)
	if err != nil {
		return nil, err
	}

	t.linksMu.Lock()
	if t.closed {
		t.linksMu.Unlock()
		connection.close()
		return nil, ErrTransportClosed
	}
	if existing, ok := t.links[remoteAddress]; ok {
		t.linksMu.Unlock()
		t.checker.Enqueue(func() { existing.Reconnect(connection) })
		return existing, nil
	}
	link := t.newLink(remoteAddress, connection)
	t.links[remoteAddress] = link
	t.linksMu.Unlock()

	t.logger.Info("link accepted", "remote", remoteAddress)
	return link, nil
}

func (t *Transport) waitForConnection(ctx context.Context, remoteAddress string) (*Connection, error) {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	expired := false
	if wait := t.config.PassiveConnectDuration; wait > 0 {
		timer := t.clock.AfterFunc(wait, func() {
			t.connectionsMu.Lock()
			expired = true
			t.connectionsUpdated.Broadcast()
			t.connectionsMu.Unlock()
		})
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() {
		t.connectionsMu.Lock()
		t.connectionsUpdated.Broadcast()
		t.connectionsMu.Unlock()
	})
	defer stop()

	for {
		if connection, ok := t.connections[remoteAddress]; ok {
			delete(t.connections, remoteAddress)
			return connection, nil
		}
		switch {
		case t.connectionsClosed:
			return nil, ErrTransportClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case expired:
			return nil, fmt.Errorf("%w: %s", ErrPassiveConnectTimeout, remoteAddress)
		}
		t.connectionsUpdated.Wait()
	}
}

// Serve accepts peer sockets on listener until ctx ends or the
// transport closes. It returns nil on a clean stop.
func (t *Transport) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-t.shutSig.SoftStopChan():
		}
		listener.Close()
	}()

	t.logger.Info("accepting links", "address", listener.Addr().String())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || t.shutSig.IsSoftStopSignalled() || netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("accepting link socket: %w", err)
		}
		go t.handleInbound(conn)
	}
}

func (t *Transport) handleInbound(conn net.Conn) {
	if err := setSocketOptions(conn, t.config); err != nil {
		t.logger.Warn("setting socket options", "error", err)
	}
	greeting, decoder, err := readHello(conn, handshakeTimeout)
	if err != nil {
		level := slog.LevelWarn
		if netutil.IsTimeout(err) {
			// Health checks and port scans connect and say nothing.
			level = slog.LevelDebug
		}
		t.logger.Log(context.Background(), level, "rejecting link socket", "from", conn.RemoteAddr().String(), "error", err)
		conn.Close()
		return
	}
	t.metrics.accepted()
	connection := t.newConnection(greeting.Address, false, &peer{conn: conn, decoder: decoder})
	t.passiveConnection(greeting.Address, connection)
}

// passiveConnection routes a freshly accepted connection: to the
// existing link as a reconnect, or into the pending map for Accept.
func (t *Transport) passiveConnection(remoteAddress string, connection *Connection) {
	t.linksMu.Lock()
	defer t.linksMu.Unlock()
	if t.closed {
		connection.close()
		return
	}
	if _, ok := t.links[remoteAddress]; ok {
		t.checker.Enqueue(func() { t.freshLink(remoteAddress, connection) })
		return
	}

	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()
	if old, ok := t.connections[remoteAddress]; ok {
		t.logger.Error("replacing unclaimed connection", "remote", remoteAddress)
		go old.close()
	}
	t.connections[remoteAddress] = connection
	t.connectionsUpdated.Broadcast()
}

func (t *Transport) freshLink(remoteAddress string, connection *Connection) {
	link, ok := t.Link(remoteAddress)
	if !ok {
		connection.close()
		return
	}
	link.Reconnect(connection)
}

func (t *Transport) dial(ctx context.Context, remoteAddress string) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, remoteAddress)
	if err != nil {
		return nil, err
	}
	if err := setSocketOptions(conn, t.config); err != nil {
		t.logger.Warn("setting socket options", "error", err)
	}
	if err := writeHello(conn, t.config.LocalAddress); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (t *Transport) forgetLink(link *DataLink) {
	t.linksMu.Lock()
	defer t.linksMu.Unlock()
	if t.links[link.remoteAddress] == link {
		delete(t.links, link.remoteAddress)
	}
}

// Close closes every link and unclaimed connection and stops Serve.
// It must not be called from a LinkListener.
func (t *Transport) Close() error {
	t.linksMu.Lock()
	if t.closed {
		t.linksMu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]*DataLink, 0, len(t.links))
	for _, link := range t.links {
		links = append(links, link)
	}
	t.linksMu.Unlock()

	t.connectionsMu.Lock()
	t.connectionsClosed = true
	pending := t.connections
	t.connections = make(map[string]*Connection)
	t.connectionsUpdated.Broadcast()
	t.connectionsMu.Unlock()

	t.shutSig.TriggerSoftStop()
	t.checker.Close()
	for _, connection := range pending {
		connection.close()
	}
	for _, link := range links {
		link.Close()
	}
	return nil
}
