// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/testutil"
)

func TestListenTCP_Address(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	defer listener.Close()

	address := listener.Addr().String()
	if !strings.Contains(address, ":") {
		t.Errorf("Addr() = %q, expected host:port format", address)
	}
}

func TestTCPDialer_ConnectionRefused(t *testing.T) {
	dialer := &TCPDialer{Timeout: time.Second}

	// Port 1 is almost certainly not listening.
	_, err := dialer.DialContext(context.Background(), "127.0.0.1:1")
	if err == nil {
		t.Error("expected error connecting to non-listening port")
	}
}

func TestTCPDialer_ContextCancellation(t *testing.T) {
	dialer := &TCPDialer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	_, err := dialer.DialContext(ctx, "127.0.0.1:1")
	if err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestServe_ContextCancellation(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	transport := newTestTransport(t, testConfig(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- transport.Serve(ctx, listener)
	}()

	// Cancel the context; Serve should return cleanly.
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Serve() did not return after context cancellation")
	}
}

// tcpPair starts an acceptor transport serving on loopback and a
// connector transport announcing clientAddress, and links them.
func tcpPair(t *testing.T, config Config) (client, server *DataLink, clientMessages, serverMessages messageSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	serverMessages = make(messageSink, 16)
	serverTransport := newTestTransport(t, config, Options{Deliverer: serverMessages})
	go serverTransport.Serve(ctx, listener)

	const clientAddress = "client.example:7400"
	clientConfig := config
	clientConfig.LocalAddress = clientAddress
	clientMessages = make(messageSink, 16)
	clientTransport := newTestTransport(t, clientConfig, Options{Deliverer: clientMessages})

	accepted := make(chan *DataLink, 1)
	acceptErrors := make(chan error, 1)
	go func() {
		link, err := serverTransport.Accept(ctx, clientAddress)
		if err != nil {
			acceptErrors <- err
			return
		}
		accepted <- link
	}()

	client, err = clientTransport.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	select {
	case server = <-accepted:
	case err := <-acceptErrors:
		t.Fatalf("Accept() error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Accept() did not return")
	}
	return client, server, clientMessages, serverMessages
}

func TestLinkOverTCP(t *testing.T) {
	config := testConfig()
	config.Compression = codec.CompressionZstd
	client, server, clientMessages, serverMessages := tcpPair(t, config)

	if server.RemoteAddress() != "client.example:7400" {
		t.Errorf("server link remote = %q", server.RemoteAddress())
	}

	large := Message{
		Domain:      3,
		Topic:       "sensors/temp",
		Partition:   "lab",
		Operation:   OperationWrite,
		Timestamp:   epoch,
		Publication: 9,
		Sequence:    1,
		Payload:     []byte(strings.Repeat("compressible ", 200)),
	}
	if err := client.Send(large); err != nil {
		t.Fatalf("client Send: %v", err)
	}
	got := testutil.RequireReceive(t, serverMessages, 5*time.Second, "waiting for the server to receive")
	if diff := cmp.Diff(large, got); diff != "" {
		t.Errorf("server received mismatch (-want +got):\n%s", diff)
	}

	reply := Message{Topic: "sensors/ack", Operation: OperationRegister, Timestamp: epoch}
	if err := server.Send(reply); err != nil {
		t.Fatalf("server Send: %v", err)
	}
	got = testutil.RequireReceive(t, clientMessages, 5*time.Second, "waiting for the client to receive")
	if diff := cmp.Diff(reply, got); diff != "" {
		t.Errorf("client received mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkOverTCPSurvivesSocketLoss(t *testing.T) {
	config := testConfig()
	config.ConnRetryInitialDelay = 10 * time.Millisecond
	client, server, _, serverMessages := tcpPair(t, config)
	events := newEventRecorder()
	client.AddListener(events)
	original := server.Connection()

	// Break the socket under the connector.
	client.Connection().currentPeer().conn.Close()

	events.require(t, EventDisconnected)
	events.require(t, EventReconnected)
	testutil.RequireEventually(t, func() bool {
		return server.Connection() != original
	}, 5*time.Second, "waiting for the acceptor to take the new socket")

	sent := Message{Topic: "after/reconnect", Operation: OperationWrite, Timestamp: epoch}
	if err := client.Send(sent); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, serverMessages, 5*time.Second, "waiting for delivery after reconnect")
	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if server.Connection().Previous() != original {
		t.Error("new acceptor connection does not record the one it replaced")
	}
}

func TestConnectReusesLink(t *testing.T) {
	client, _, _, _ := tcpPair(t, testConfig())
	again, err := client.transport.Connect(context.Background(), client.RemoteAddress())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if again != client {
		t.Error("second Connect built a new link")
	}
}

func TestConnectAfterClose(t *testing.T) {
	transport, err := New(testConfig(), Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	transport.Close()
	if _, err := transport.Connect(context.Background(), "127.0.0.1:1"); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Connect after Close = %v, want ErrTransportClosed", err)
	}
}
