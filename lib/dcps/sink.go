// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
)

// Observer is told that a sink has new data. Schedule is called
// without the sink's lock held and must not block.
type Observer interface {
	Schedule()
}

// SinkOption configures a Sink.
type SinkOption func(*sinkOptions)

type sinkOptions struct {
	depth   int
	name    string
	metrics *Metrics
}

// WithDepth bounds the history kept per instance. LengthUnlimited (the
// default) keeps everything.
func WithDepth(depth int) SinkOption {
	return func(o *sinkOptions) { o.depth = depth }
}

// WithMetrics records the sink's activity under name.
func WithMetrics(metrics *Metrics, name string) SinkOption {
	return func(o *sinkOptions) {
		o.metrics = metrics
		o.name = name
	}
}

// Sink is the reader side of a topic: one SampleCache per instance,
// indexed by key, by instance handle, and by cache state. All methods
// are safe for concurrent use.
//
// Instance handles are assigned by the sink, start at 1, and are never
// reused. Handle order is creation order, which is the order the
// next-instance cursors follow.
type Sink[S any, K comparable] struct {
	key     func(S) K
	options sinkOptions

	mu         sync.Mutex
	nextHandle InstanceHandle
	keyToCache map[K]*SampleCache[S]
	// instanceToCache maps InstanceHandle to *SampleCache[S].
	instanceToCache *treemap.Map
	// stateToCaches maps CacheState to a *treeset.Set of caches ordered
	// by handle. Empty buckets are removed.
	stateToCaches *treemap.Map
	observer      Observer
}

// NewSink returns an empty sink. key extracts the instance key from a
// sample.
func NewSink[S any, K comparable](key func(S) K, options ...SinkOption) *Sink[S, K] {
	o := sinkOptions{depth: LengthUnlimited}
	for _, option := range options {
		option(&o)
	}
	return &Sink[S, K]{
		key:        key,
		options:    o,
		nextHandle: 1,
		keyToCache: make(map[K]*SampleCache[S]),
		instanceToCache: treemap.NewWith(func(a, b interface{}) int {
			return compareHandles(a.(InstanceHandle), b.(InstanceHandle))
		}),
		stateToCaches: treemap.NewWith(func(a, b interface{}) int {
			return a.(CacheState).Compare(b.(CacheState))
		}),
	}
}

func compareHandles(a, b InstanceHandle) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SetObserver installs the observer told about new data. Passing nil
// removes it.
func (s *Sink[S, K]) SetObserver(observer Observer) {
	s.mu.Lock()
	s.observer = observer
	s.mu.Unlock()
}

// Depth returns the per-instance history bound.
func (s *Sink[S, K]) Depth() int { return s.options.depth }

// RegisterInstance records publication as a writer of sample's instance,
// creating the instance if needed.
func (s *Sink[S, K]) RegisterInstance(sample S, timestamp time.Time, publication PublicationHandle) {
	s.mutate(sample, true, func(c *SampleCache[S]) {
		c.RegisterInstance(sample, timestamp, publication)
	})
}

// Write stores sample, creating its instance if needed.
func (s *Sink[S, K]) Write(sample S, timestamp time.Time, publication PublicationHandle) {
	s.mutate(sample, true, func(c *SampleCache[S]) {
		c.Write(sample, timestamp, publication)
		s.options.metrics.written(s.options.name)
	})
}

// UnregisterInstance removes publication from the writers of sample's
// instance. Unknown instances are ignored.
func (s *Sink[S, K]) UnregisterInstance(sample S, timestamp time.Time, publication PublicationHandle) {
	s.mutate(sample, false, func(c *SampleCache[S]) {
		c.UnregisterInstance(sample, timestamp, publication)
	})
}

// DisposeInstance disposes sample's instance. Unknown instances are
// ignored.
func (s *Sink[S, K]) DisposeInstance(sample S, timestamp time.Time, publication PublicationHandle) {
	s.mutate(sample, false, func(c *SampleCache[S]) {
		c.DisposeInstance(sample, timestamp, publication)
	})
}

func (s *Sink[S, K]) mutate(sample S, create bool, apply func(*SampleCache[S])) {
	s.mu.Lock()
	cache, ok := s.keyToCache[s.key(sample)]
	if !ok {
		if !create {
			s.mu.Unlock()
			return
		}
		cache = s.insertLocked(s.key(sample))
	}
	before := cache.State()
	apply(cache)
	cache.Resize(s.options.depth)
	s.reclassifyLocked(cache, before)
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Schedule()
	}
}

func (s *Sink[S, K]) insertLocked(key K) *SampleCache[S] {
	cache := NewSampleCache[S](s.nextHandle)
	s.nextHandle++
	s.keyToCache[key] = cache
	s.instanceToCache.Put(cache.InstanceHandle(), cache)
	s.fileLocked(cache, cache.State())
	s.options.metrics.setInstances(s.options.name, len(s.keyToCache))
	return cache
}

func (s *Sink[S, K]) bucketLocked(state CacheState) *treeset.Set {
	if value, ok := s.stateToCaches.Get(state); ok {
		return value.(*treeset.Set)
	}
	bucket := treeset.NewWith(func(a, b interface{}) int {
		return compareHandles(a.(*SampleCache[S]).InstanceHandle(), b.(*SampleCache[S]).InstanceHandle())
	})
	s.stateToCaches.Put(state, bucket)
	return bucket
}

func (s *Sink[S, K]) fileLocked(cache *SampleCache[S], state CacheState) {
	s.bucketLocked(state).Add(cache)
}

func (s *Sink[S, K]) unfileLocked(cache *SampleCache[S], state CacheState) {
	value, ok := s.stateToCaches.Get(state)
	if !ok {
		return
	}
	bucket := value.(*treeset.Set)
	bucket.Remove(cache)
	if bucket.Empty() {
		s.stateToCaches.Remove(state)
	}
}

func (s *Sink[S, K]) reclassifyLocked(cache *SampleCache[S], before CacheState) {
	if after := cache.State(); after != before {
		s.unfileLocked(cache, before)
		s.fileLocked(cache, after)
	}
}

// Read returns up to max samples (LengthUnlimited for all) from every
// instance whose state matches the masks, without removing them.
// Instances are visited bucket by bucket in state order, and by handle
// within a bucket.
func (s *Sink[S, K]) Read(max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) Collection[S] {
	return s.drain(max, sampleMask, viewMask, instanceMask, false)
}

// Take is Read, but removes the returned samples.
func (s *Sink[S, K]) Take(max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) Collection[S] {
	return s.drain(max, sampleMask, viewMask, instanceMask, true)
}

func (s *Sink[S, K]) drain(max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState, take bool) Collection[S] {
	var out Collection[S]
	var moved []*SampleCache[S]

	s.mu.Lock()
	defer s.mu.Unlock()

	// Buckets are snapshotted so caches whose state changes can be
	// unfiled during the pass and refiled once it is over.
	for _, key := range s.stateToCaches.Keys() {
		if out.full(max) {
			break
		}
		state := key.(CacheState)
		if !state.Matches(sampleMask, viewMask, instanceMask) {
			continue
		}
		value, _ := s.stateToCaches.Get(state)
		bucket := value.(*treeset.Set)
		for _, item := range bucket.Values() {
			if out.full(max) {
				break
			}
			cache := item.(*SampleCache[S])
			if take {
				cache.Take(&out, max, sampleMask)
			} else {
				cache.Read(&out, max, sampleMask)
			}
			if cache.State() != state {
				bucket.Remove(cache)
				moved = append(moved, cache)
			}
		}
		if bucket.Empty() {
			s.stateToCaches.Remove(state)
		}
	}

	for _, cache := range moved {
		s.fileLocked(cache, cache.State())
	}
	s.options.metrics.returned(s.options.name, operationName(take), out.Len())
	return out
}

func operationName(take bool) string {
	if take {
		return "take"
	}
	return "read"
}

// ReadNextSample reads the oldest not-read sample of the first instance
// that has one.
func (s *Sink[S, K]) ReadNextSample() (S, SampleInfo, bool) {
	return first(s.Read(1, NotReadSampleState, AnyViewState, AnyInstanceState))
}

// TakeNextSample is ReadNextSample, but removes the sample.
func (s *Sink[S, K]) TakeNextSample() (S, SampleInfo, bool) {
	return first(s.Take(1, NotReadSampleState, AnyViewState, AnyInstanceState))
}

func first[S any](out Collection[S]) (S, SampleInfo, bool) {
	if out.Len() == 0 {
		var zero S
		return zero, SampleInfo{}, false
	}
	return out.Samples[0], out.Infos[0], true
}

// ReadInstance reads from the instance identified by handle if its state
// matches the masks. An unknown handle returns nothing.
func (s *Sink[S, K]) ReadInstance(handle InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) Collection[S] {
	return s.drainInstance(handle, max, sampleMask, viewMask, instanceMask, false)
}

// TakeInstance is ReadInstance, but removes the returned samples.
func (s *Sink[S, K]) TakeInstance(handle InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) Collection[S] {
	return s.drainInstance(handle, max, sampleMask, viewMask, instanceMask, true)
}

func (s *Sink[S, K]) drainInstance(handle InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState, take bool) Collection[S] {
	var out Collection[S]
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.instanceToCache.Get(handle)
	if !ok {
		return out
	}
	s.drainCacheLocked(&out, value.(*SampleCache[S]), max, sampleMask, viewMask, instanceMask, take)
	return out
}

func (s *Sink[S, K]) drainCacheLocked(out *Collection[S], cache *SampleCache[S], max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState, take bool) {
	before := cache.State()
	if !before.Matches(sampleMask, viewMask, instanceMask) {
		return
	}
	count := out.Len()
	if take {
		cache.Take(out, max, sampleMask)
	} else {
		cache.Read(out, max, sampleMask)
	}
	s.reclassifyLocked(cache, before)
	s.options.metrics.returned(s.options.name, operationName(take), out.Len()-count)
}

// ReadNextInstance reads from the first instance after previous (in
// handle order) that has something matching the masks. Start a cursor
// with HandleNil and continue from the InstanceHandle of the last
// returned SampleInfo. It reports false when no later instance matched.
func (s *Sink[S, K]) ReadNextInstance(previous InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) (Collection[S], bool) {
	return s.drainNextInstance(previous, max, sampleMask, viewMask, instanceMask, false)
}

// TakeNextInstance is ReadNextInstance, but removes the returned
// samples.
func (s *Sink[S, K]) TakeNextInstance(previous InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) (Collection[S], bool) {
	return s.drainNextInstance(previous, max, sampleMask, viewMask, instanceMask, true)
}

func (s *Sink[S, K]) drainNextInstance(previous InstanceHandle, max int, sampleMask SampleState, viewMask ViewState, instanceMask InstanceState, take bool) (Collection[S], bool) {
	var out Collection[S]
	s.mu.Lock()
	defer s.mu.Unlock()

	for handle := previous; ; {
		key, value := s.instanceToCache.Ceiling(handle + 1)
		if key == nil {
			return out, false
		}
		s.drainCacheLocked(&out, value.(*SampleCache[S]), max, sampleMask, viewMask, instanceMask, take)
		if out.Len() > 0 {
			return out, true
		}
		handle = key.(InstanceHandle)
	}
}

// GetKeyValue returns the key sample of the instance identified by
// handle.
func (s *Sink[S, K]) GetKeyValue(handle InstanceHandle) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.instanceToCache.Get(handle)
	if !ok {
		var zero S
		return zero, false
	}
	return value.(*SampleCache[S]).KeyValue(), true
}

// LookupInstance returns the handle of sample's instance, or HandleNil
// if the sink has never seen its key.
func (s *Sink[S, K]) LookupInstance(sample S) InstanceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache, ok := s.keyToCache[s.key(sample)]; ok {
		return cache.InstanceHandle()
	}
	return HandleNil
}

// InstanceKeys returns the key sample of every instance in handle order.
// It does not change any read state.
func (s *Sink[S, K]) InstanceKeys() []S {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]S, 0, s.instanceToCache.Size())
	for _, value := range s.instanceToCache.Values() {
		keys = append(keys, value.(*SampleCache[S]).KeyValue())
	}
	return keys
}

// Len returns the number of instances.
func (s *Sink[S, K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyToCache)
}

// Initialize copies every instance of other into s with all samples
// unread and every instance NEW. Copied instances get fresh handles in
// other's handle order; an instance s already has for the same key is
// replaced. The history is trimmed to s's depth.
func (s *Sink[S, K]) Initialize(other *Sink[S, K]) {
	s.mu.Lock()
	other.mu.Lock()
	for _, value := range other.instanceToCache.Values() {
		source := value.(*SampleCache[S])
		key := s.key(source.KeyValue())
		if existing, ok := s.keyToCache[key]; ok {
			s.instanceToCache.Remove(existing.InstanceHandle())
			s.unfileLocked(existing, existing.State())
			delete(s.keyToCache, key)
		}
		cache := s.insertLocked(key)
		before := cache.State()
		cache.Initialize(source)
		cache.Resize(s.options.depth)
		s.reclassifyLocked(cache, before)
	}
	other.mu.Unlock()
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Schedule()
	}
}
