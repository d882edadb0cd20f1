// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// reconnect runs on the reconnect task for every Relink.
func (c *Connection) reconnect() {
	if c.connector {
		c.activeReconnect()
	} else {
		c.passiveReconnect()
	}
}

// activeReconnect redials the peer up to ConnRetryAttempts times,
// sleeping an exponentially growing delay between failures. LOST is
// final; the owner must build a new link to try again.
func (c *Connection) activeReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	if c.shutdown {
		return
	}

	if c.state == StateReconnected && c.clock.Now().Sub(c.lastReconnectAttempted) > reconnectDelay {
		c.setStateLocked(StateInit)
	}
	if c.state != StateInit {
		return
	}

	send := c.sendStrategy()
	if send != nil {
		send.SuspendSend()
	}
	c.closePeer()

	attempts := c.config.ConnRetryAttempts
	if attempts > 0 {
		c.logger.Info("link disconnected, reconnecting", "attempts", attempts)
		c.notify(EventDisconnected)
	}

	delays := c.newBackOff()
	var err error = ErrNotConnected
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.activeEstablishment()
		if err == nil || c.ctx.Err() != nil {
			break
		}
		c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-c.clock.After(delays.NextBackOff()):
		case <-c.ctx.Done():
		}
		if c.ctx.Err() != nil {
			break
		}
	}
	if c.ctx.Err() != nil {
		return
	}

	if err != nil {
		c.logger.Info("link lost", "error", err)
		c.setStateLocked(StateLost)
		c.notify(EventLost)
		if send != nil {
			send.TerminateSend()
		}
	} else {
		c.logger.Info("link reconnected")
		c.setStateLocked(StateReconnected)
		c.notify(EventReconnected)
		if send != nil {
			send.ResumeSend()
		}
	}
	c.lastReconnectAttempted = c.clock.Now()
}

func (c *Connection) newBackOff() *backoff.ExponentialBackOff {
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = c.config.ConnRetryInitialDelay
	delays.Multiplier = c.config.ConnRetryBackoffMultiplier
	delays.RandomizationFactor = 0
	delays.MaxInterval = time.Duration(math.MaxInt64)
	delays.MaxElapsedTime = 0
	delays.Reset()
	return delays
}

func (c *Connection) activeEstablishment() error {
	conn, err := c.transport.dial(c.ctx, c.remoteAddress)
	c.metrics.attempt(err)
	if err != nil {
		return err
	}
	c.setPeer(newPeer(conn))
	return nil
}

// passiveReconnect starts waiting for the connector to come back. The
// wait ends either in Transfer, when the connector's new socket is
// accepted, or in passiveTimeout.
func (c *Connection) passiveReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	if c.shutdown || c.state != StateInit {
		return
	}
	c.closePeer()

	wait := c.config.PassiveReconnectDuration
	if wait <= 0 {
		c.logger.Info("link lost, passive reconnect disabled")
		c.setStateLocked(StateLost)
		c.notify(EventLost)
		c.terminateSend()
		return
	}

	c.logger.Info("link disconnected, waiting for peer", "wait", wait)
	c.setStateLocked(StatePassiveWaiting)
	c.notify(EventDisconnected)
	c.passiveTimer = c.clock.AfterFunc(wait, c.passiveTimeout)
}

func (c *Connection) passiveTimeout() {
	// The state is published before the decision so that a Transfer
	// racing this timer sees that it fired.
	c.reconnectMu.Lock()
	if c.state == StatePassiveWaiting {
		c.setStateLocked(StatePassiveTimeoutCalled)
	}
	c.reconnectMu.Unlock()

	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	switch c.state {
	case StatePassiveTimeoutCalled:
		c.logger.Info("link lost, peer did not reconnect")
		c.notify(EventLost)
		c.terminateSend()
		c.setStateLocked(StateLost)
	case StateReconnected:
	default:
		c.logger.Error("passive reconnect timer fired in unexpected state", "state", c.state)
	}
}

// Transfer hands this acceptor-side connection's link and strategies
// to next, a connection freshly accepted from the same peer. Depending
// on how far recovery had got, the link hears RECONNECTED: from
// PASSIVE_WAITING the timer is cancelled, from LOST the send strategy
// is revived. If the passive timer has fired without reporting yet, the
// link hears LOST first. From INIT, where the peer came back before the loss was
// noticed, the handover is silent.
func (c *Connection) Transfer(next *Connection) {
	c.reconnectMu.Lock()

	notify, revive := false, false
	switch c.state {
	case StateInit:
	case StateLost:
		notify, revive = true, true
	case StatePassiveTimeoutCalled:
		// The timer fired but has not reported yet, and will find the
		// link reconnected. Report the loss here so LOST still comes
		// before RECONNECTED.
		c.logger.Info("link lost, peer reconnected as the passive window closed")
		c.notify(EventLost)
		c.terminateSend()
		c.setStateLocked(StateLost)
		notify, revive = true, true
	case StatePassiveWaiting:
		if !c.passiveTimer.Stop() {
			c.logger.Error("failed to cancel passive reconnect timer")
		}
		notify = true
	default:
		c.logger.Error("transfer in unexpected reconnect state", "state", c.state)
	}
	if c.connector || next.connector {
		c.logger.Error("transfer called on the connector side")
	}

	c.shutdown = true
	c.cancel()
	c.closePeer()

	c.mu.Lock()
	link, send, receive := c.link, c.send, c.receive
	c.send, c.receive = nil, nil
	c.mu.Unlock()

	next.reconnectMu.Lock()
	next.previous = c
	next.reconnectMu.Unlock()
	c.previous = nil
	c.next = next

	if send != nil && receive != nil {
		next.adopt(link, send, receive)
		if revive {
			send.revive()
		}
		send.ResumeSend()
	}

	if notify {
		c.logger.Info("link reconnected by peer")
		c.setStateLocked(StateReconnected)
		c.notify(EventReconnected)
	}
	c.reconnectMu.Unlock()

	c.reconnects.Close()
}

// NotifyLostOnBackpressureTimeout declares the link lost because a
// write stalled for longer than MaxOutputPausePeriod. It only acts on a
// connection that is not already recovering.
func (c *Connection) NotifyLostOnBackpressureTimeout() {
	c.reconnectMu.Lock()
	lost := false
	if c.state == StateInit {
		c.logger.Info("link lost, output paused too long", "period", c.config.MaxOutputPausePeriod)
		c.setStateLocked(StateLost)
		c.closePeer()
		lost = true
	}
	c.reconnectMu.Unlock()

	if lost {
		c.notify(EventLost)
		c.terminateSend()
	}
}
