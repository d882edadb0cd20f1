// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import (
	"sync/atomic"
	"weak"

	"github.com/OpenDDS/OpenDDS-sub024/lib/jobqueue"
)

// QueueObserver runs a callback on a job queue whenever its sink has new
// data. Notifications that arrive while a run is already pending are
// coalesced into that run.
//
// The observer holds its sink weakly: the sink owns the observer, and
// a sink that has been dropped is not kept alive by queued work.
type QueueObserver[S any, K comparable] struct {
	queue     *jobqueue.Queue
	sink      weak.Pointer[Sink[S, K]]
	observe   func(*Sink[S, K])
	scheduled atomic.Bool
}

// NewQueueObserver creates an observer running observe on queue and
// installs it on sink.
func NewQueueObserver[S any, K comparable](queue *jobqueue.Queue, sink *Sink[S, K], observe func(*Sink[S, K])) *QueueObserver[S, K] {
	o := &QueueObserver[S, K]{
		queue:   queue,
		sink:    weak.Make(sink),
		observe: observe,
	}
	sink.SetObserver(o)
	return o
}

// Schedule queues a run unless one is already pending.
func (o *QueueObserver[S, K]) Schedule() {
	if !o.scheduled.CompareAndSwap(false, true) {
		return
	}
	if !o.queue.Enqueue(o.execute) {
		o.scheduled.Store(false)
	}
}

func (o *QueueObserver[S, K]) execute() {
	// Cleared first so data written while observe runs schedules
	// another run.
	o.scheduled.Store(false)
	sink := o.sink.Value()
	if sink == nil {
		return
	}
	o.observe(sink)
}
