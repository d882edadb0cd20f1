// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobqueue runs deferred work on one dedicated goroutine.
//
// A Sink's observer enqueues its "data available" callback here so that
// reader notification never runs under the Sink lock, and the transport
// enqueues freshly accepted connections here so that replacing a link's
// connection never runs on the accept loop.
package jobqueue

import (
	"log/slog"
	"sync"

	"github.com/Jeffail/shutdown"
)

// Job is one unit of deferred work.
type Job func()

// Queue executes jobs in enqueue order on a single goroutine.
type Queue struct {
	logger *slog.Logger

	mu     sync.Mutex
	jobs   []Job
	closed bool
	notify chan struct{}

	shutSig *shutdown.Signaller
}

// New starts a Queue. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:  logger,
		notify:  make(chan struct{}, 1),
		shutSig: shutdown.NewSignaller(),
	}
	go q.loop()
	return q
}

// Enqueue schedules job. It reports false, and drops the job, once the
// queue has been closed.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs, discards the ones still waiting and
// blocks until the running job, if any, returns. Close must not be
// called from inside a job.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.shutSig.HasStoppedChan()
		return
	}
	q.closed = true
	discarded := len(q.jobs)
	q.jobs = nil
	q.mu.Unlock()

	if discarded > 0 {
		q.logger.Debug("job queue closed with pending jobs", "discarded", discarded)
	}
	q.shutSig.TriggerSoftStop()
	<-q.shutSig.HasStoppedChan()
}

func (q *Queue) loop() {
	defer q.shutSig.TriggerHasStopped()
	for {
		select {
		case <-q.notify:
		case <-q.shutSig.SoftStopChan():
			return
		}
		for {
			job, ok := q.next()
			if !ok {
				break
			}
			q.run(job)
		}
	}
}

func (q *Queue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 || q.closed {
		return nil, false
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *Queue) run(job Job) {
	defer func() {
		if recovered := recover(); recovered != nil {
			q.logger.Error("job panicked", "panic", recovered)
		}
	}()
	job()
}
