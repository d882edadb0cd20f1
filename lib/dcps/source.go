// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
)

var lastPublicationHandle atomic.Uint64

// SourceOption configures a Source.
type SourceOption func(*sourceOptions)

type sourceOptions struct {
	durabilityDepth int
	clock           clock.Clock
	publication     PublicationHandle
	sinkOptions     []SinkOption
}

// WithDurabilityDepth bounds the per-instance history replayed to newly
// connected sinks. The default is 1.
func WithDurabilityDepth(depth int) SourceOption {
	return func(o *sourceOptions) { o.durabilityDepth = depth }
}

// WithClock sets the clock that timestamps the unregistrations a
// disconnected sink receives.
func WithClock(c clock.Clock) SourceOption {
	return func(o *sourceOptions) { o.clock = c }
}

// WithPublicationHandle fixes the handle the source writes under. By
// default each source gets a process-unique handle.
func WithPublicationHandle(handle PublicationHandle) SourceOption {
	return func(o *sourceOptions) { o.publication = handle }
}

// WithDurabilitySinkOptions passes options (metrics, for example) to the
// internal durability sink.
func WithDurabilitySinkOptions(options ...SinkOption) SourceOption {
	return func(o *sourceOptions) { o.sinkOptions = append(o.sinkOptions, options...) }
}

// Source is the writer side of a topic. Every operation is forwarded to
// all connected sinks and to an internal durability sink whose history
// is replayed into sinks as they connect.
//
// Connect and Disconnect never wait for a write in progress: the request
// is queued, and whichever goroutine holds the write lock applies it
// before that goroutine returns.
type Source[S any, K comparable] struct {
	publication PublicationHandle
	clock       clock.Clock
	durability  *Sink[S, K]

	// mu serializes writers. updateMu is only ever acquired while
	// holding mu or while holding nothing.
	mu    sync.Mutex
	sinks []*Sink[S, K]

	updateMu sync.Mutex
	toInsert []*Sink[S, K]
	toErase  []*Sink[S, K]
}

// NewSource returns a source with no connected sinks.
func NewSource[S any, K comparable](key func(S) K, options ...SourceOption) *Source[S, K] {
	o := sourceOptions{durabilityDepth: 1, clock: clock.Real()}
	for _, option := range options {
		option(&o)
	}
	if o.publication == 0 {
		o.publication = PublicationHandle(lastPublicationHandle.Add(1))
	}
	durability := NewSink(key, append([]SinkOption{WithDepth(o.durabilityDepth)}, o.sinkOptions...)...)
	return &Source[S, K]{
		publication: o.publication,
		clock:       o.clock,
		durability:  durability,
		sinks:       []*Sink[S, K]{durability},
	}
}

// PublicationHandle returns the handle the source writes under.
func (s *Source[S, K]) PublicationHandle() PublicationHandle { return s.publication }

// Durability returns the internal sink holding the replay history.
func (s *Source[S, K]) Durability() *Sink[S, K] { return s.durability }

// Instances returns the key of every instance the source has written,
// registered, or disposed.
func (s *Source[S, K]) Instances() []S { return s.durability.InstanceKeys() }

// RegisterInstance registers sample's instance in every sink.
func (s *Source[S, K]) RegisterInstance(sample S, timestamp time.Time) {
	s.forward(func(sink *Sink[S, K]) { sink.RegisterInstance(sample, timestamp, s.publication) })
}

// Write writes sample to every sink.
func (s *Source[S, K]) Write(sample S, timestamp time.Time) {
	s.forward(func(sink *Sink[S, K]) { sink.Write(sample, timestamp, s.publication) })
}

// UnregisterInstance unregisters sample's instance in every sink.
func (s *Source[S, K]) UnregisterInstance(sample S, timestamp time.Time) {
	s.forward(func(sink *Sink[S, K]) { sink.UnregisterInstance(sample, timestamp, s.publication) })
}

// DisposeInstance disposes sample's instance in every sink.
func (s *Source[S, K]) DisposeInstance(sample S, timestamp time.Time) {
	s.forward(func(sink *Sink[S, K]) { sink.DisposeInstance(sample, timestamp, s.publication) })
}

func (s *Source[S, K]) forward(apply func(*Sink[S, K])) {
	s.mu.Lock()
	for _, sink := range s.sinks {
		apply(sink)
	}
	s.processUpdatesLocked()
	s.release()
}

// release unlocks mu and applies any request queued by a Connect or
// Disconnect whose TryLock failed after processUpdatesLocked ran.
func (s *Source[S, K]) release() {
	s.mu.Unlock()
	if s.updatesPending() {
		s.tryProcessUpdates()
	}
}

func (s *Source[S, K]) updatesPending() bool {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	return len(s.toInsert) > 0 || len(s.toErase) > 0
}

// Connect attaches sink. Once applied, sink holds a copy of the
// durability history and receives every later operation.
func (s *Source[S, K]) Connect(sink *Sink[S, K]) {
	if sink == s.durability {
		return
	}
	s.updateMu.Lock()
	s.toErase = slices.DeleteFunc(s.toErase, func(pending *Sink[S, K]) bool { return pending == sink })
	if !slices.Contains(s.toInsert, sink) {
		s.toInsert = append(s.toInsert, sink)
	}
	s.updateMu.Unlock()
	s.tryProcessUpdates()
}

// Disconnect detaches sink. Before it is detached, every instance the
// source knows is unregistered in sink so its readers see the writer
// leave.
func (s *Source[S, K]) Disconnect(sink *Sink[S, K]) {
	if sink == s.durability {
		return
	}
	s.updateMu.Lock()
	s.toInsert = slices.DeleteFunc(s.toInsert, func(pending *Sink[S, K]) bool { return pending == sink })
	if !slices.Contains(s.toErase, sink) {
		s.toErase = append(s.toErase, sink)
	}
	s.updateMu.Unlock()
	s.tryProcessUpdates()
}

// Connected returns the number of attached sinks, not counting the
// durability sink.
func (s *Source[S, K]) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks) - 1
}

func (s *Source[S, K]) tryProcessUpdates() {
	if !s.mu.TryLock() {
		// The holder of mu sees the request in release.
		return
	}
	s.processUpdatesLocked()
	s.release()
}

func (s *Source[S, K]) processUpdatesLocked() {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	for _, sink := range s.toErase {
		if !slices.Contains(s.sinks, sink) {
			continue
		}
		now := s.clock.Now()
		for _, key := range s.durability.InstanceKeys() {
			sink.UnregisterInstance(key, now, s.publication)
		}
		s.sinks = slices.DeleteFunc(s.sinks, func(connected *Sink[S, K]) bool { return connected == sink })
	}
	for _, sink := range s.toInsert {
		if slices.Contains(s.sinks, sink) {
			continue
		}
		s.sinks = append(s.sinks, sink)
		sink.Initialize(s.durability)
	}
	s.toErase = nil
	s.toInsert = nil
}
