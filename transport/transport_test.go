// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/testutil"
)

func TestNewRejectsBadConfig(t *testing.T) {
	config := testConfig()
	config.ConnRetryBackoffMultiplier = 0.5
	if _, err := New(config, Options{}); err == nil {
		t.Error("expected error for multiplier below 1")
	}
	config = testConfig()
	config.ConnRetryAttempts = -1
	if _, err := New(config, Options{}); err == nil {
		t.Error("expected error for negative attempts")
	}
}

func TestAcceptTimesOut(t *testing.T) {
	clk := newFakeClock()
	config := testConfig()
	config.PassiveConnectDuration = time.Second
	transport := newTestTransport(t, config, Options{Clock: clk})

	result := make(chan error, 1)
	go func() {
		_, err := transport.Accept(context.Background(), testRemote)
		result <- err
	}()
	clk.WaitForTimers(1)
	clk.Advance(time.Second)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Accept")
	if !errors.Is(err, ErrPassiveConnectTimeout) {
		t.Errorf("Accept() = %v, want ErrPassiveConnectTimeout", err)
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	config := testConfig()
	config.PassiveConnectDuration = 0
	transport := newTestTransport(t, config, Options{Clock: newFakeClock()})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := transport.Accept(ctx, testRemote)
		result <- err
	}()
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Accept")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Accept() = %v, want context.Canceled", err)
	}
}

func TestAcceptEndsOnClose(t *testing.T) {
	config := testConfig()
	config.PassiveConnectDuration = 0
	transport := newTestTransport(t, config, Options{Clock: newFakeClock()})

	result := make(chan error, 1)
	go func() {
		_, err := transport.Accept(context.Background(), testRemote)
		result <- err
	}()
	transport.Close()

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Accept")
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Accept() = %v, want ErrTransportClosed", err)
	}
}

func TestAcceptClaimsPendingConnection(t *testing.T) {
	transport := newTestTransport(t, testConfig(), Options{Clock: newFakeClock()})

	local, remote := net.Pipe()
	defer remote.Close()
	connection := transport.newConnection(testRemote, false, newPeer(local))
	transport.passiveConnection(testRemote, connection)

	link, err := transport.Accept(context.Background(), testRemote)
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if link.Connection() != connection {
		t.Error("Accept did not claim the pending connection")
	}
	transport.connectionsMu.Lock()
	pending := len(transport.connections)
	transport.connectionsMu.Unlock()
	if pending != 0 {
		t.Errorf("%d connections left pending", pending)
	}

	// A second socket from the same peer becomes a reconnect.
	local2, remote2 := net.Pipe()
	defer remote2.Close()
	next := transport.newConnection(testRemote, false, newPeer(local2))
	transport.passiveConnection(testRemote, next)
	testutil.RequireEventually(t, func() bool {
		return link.Connection() == next
	}, 5*time.Second, "waiting for the connection checker")
}

func TestLinkCloseForgetsLink(t *testing.T) {
	transport := newTestTransport(t, testConfig(), Options{Clock: newFakeClock()})
	link, _, _, _ := pipeLink(t, transport, true)

	if err := link.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := transport.Link(testRemote); ok {
		t.Error("closed link still registered")
	}
	if err := link.Send(Message{Topic: "t"}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Send on closed link = %v, want ErrTransportClosed", err)
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	first := newTestTransport(t, testConfig(), Options{})
	second := newTestTransport(t, testConfig(), Options{})

	if err := registry.Register("tcp", first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("tcp", second); err == nil {
		t.Error("duplicate name accepted")
	}
	if err := registry.Register("backup", second); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := registry.Get("tcp"); !ok || got != first {
		t.Error("Get returned the wrong transport")
	}
	if names := registry.Names(); !slices.Equal(names, []string{"backup", "tcp"}) {
		t.Errorf("Names() = %v", names)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := registry.Get("tcp"); ok {
		t.Error("Get after Close found a transport")
	}
	if _, err := first.Connect(context.Background(), "127.0.0.1:1"); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("registered transport not closed: %v", err)
	}
}
