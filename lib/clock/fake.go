// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves through Advance. It is
// safe for concurrent use.
//
// AfterFunc callbacks run synchronously on the goroutine calling
// Advance, without the clock's lock held. A callback may schedule new
// timers; it must not call Advance.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	pending  deadlineHeap
	sequence uint64
	changed  *sync.Cond
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// pendingTimer is one scheduled event. Exactly one of channel and
// callback is set.
type pendingTimer struct {
	deadline time.Time
	sequence uint64
	period   time.Duration
	channel  chan time.Time
	callback func()

	// index is the heap position, or -1 when the timer is not queued.
	index int
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced by
// d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.scheduleLocked(&pendingTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f. A non-positive d runs f before AfterFunc
// returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	timer := &pendingTimer{deadline: c.now.Add(d), callback: f}
	c.scheduleLocked(timer)
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.cancel(timer) }}
}

// NewTicker returns a Ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	timer := &pendingTimer{deadline: c.now.Add(d), period: d, channel: channel}
	c.scheduleLocked(timer)
	c.mu.Unlock()
	return &Ticker{C: channel, stop: func() { c.cancel(timer) }}
}

// Sleep blocks until the clock has advanced by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every timer whose
// deadline is reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for len(c.pending) > 0 && !c.pending[0].deadline.After(target) {
		timer := heap.Pop(&c.pending).(*pendingTimer)
		if timer.deadline.After(c.now) {
			c.now = timer.deadline
		}
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			c.scheduleLocked(timer)
		}
		fired := c.now
		c.mu.Unlock()
		if timer.callback != nil {
			timer.callback()
		} else {
			select {
			case timer.channel <- fired:
			default:
			}
		}
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n timers are pending. Tests use
// it to make sure a goroutine has armed its timer before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of scheduled timers, tickers and
// sleeps.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) scheduleLocked(timer *pendingTimer) {
	c.sequence++
	timer.sequence = c.sequence
	heap.Push(&c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) cancel(timer *pendingTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer.index < 0 {
		return false
	}
	heap.Remove(&c.pending, timer.index)
	return true
}

// deadlineHeap implements heap.Interface ordered by deadline, then by
// scheduling order.
type deadlineHeap []*pendingTimer

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].sequence < h[j].sequence
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	timer := x.(*pendingTimer)
	timer.index = len(*h)
	*h = append(*h, timer)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	last := len(old) - 1
	timer := old[last]
	old[last] = nil
	timer.index = -1
	*h = old[:last]
	return timer
}
