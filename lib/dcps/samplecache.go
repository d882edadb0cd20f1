// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import "time"

// element is one stored sample together with the generation counts in
// effect when it was stored.
type element[S any] struct {
	sample                   S
	disposedGenerationCount  int
	noWritersGenerationCount int
	sourceTimestamp          time.Time
	publicationHandle        PublicationHandle
}

func (e element[S]) generations() int {
	return e.disposedGenerationCount + e.noWritersGenerationCount
}

// placeholderState tracks the instance element: the entry that reports
// an instance state change when no data sample does.
type placeholderState uint8

const (
	placeholderNotRead placeholderState = iota
	placeholderRead
	placeholderTaken
)

// SampleCache is the history of one instance. It is not safe for
// concurrent use; the owning Sink serializes access.
type SampleCache[S any] struct {
	handle InstanceHandle

	// newSamples have not been returned by a read; notNewSamples have.
	// Both are oldest first.
	newSamples    []element[S]
	notNewSamples []element[S]

	instanceElement      element[S]
	instanceElementState placeholderState

	viewState     ViewState
	instanceState InstanceState

	disposedGenerationCount  int
	noWritersGenerationCount int

	publications map[PublicationHandle]struct{}
}

// NewSampleCache returns an empty, alive cache for the instance
// identified by handle.
func NewSampleCache[S any](handle InstanceHandle) *SampleCache[S] {
	return &SampleCache[S]{
		handle:               handle,
		instanceElementState: placeholderNotRead,
		viewState:            NewViewState,
		instanceState:        AliveInstanceState,
		publications:         make(map[PublicationHandle]struct{}),
	}
}

// InstanceHandle returns the handle the cache was created with.
func (c *SampleCache[S]) InstanceHandle() InstanceHandle { return c.handle }

func (c *SampleCache[S]) element(sample S, timestamp time.Time, publication PublicationHandle) element[S] {
	return element[S]{
		sample:                   sample,
		disposedGenerationCount:  c.disposedGenerationCount,
		noWritersGenerationCount: c.noWritersGenerationCount,
		sourceTimestamp:          timestamp,
		publicationHandle:        publication,
	}
}

// RegisterInstance records publication as a writer of the instance. An
// instance that is not alive becomes alive again in a new generation
// and, if the reader had already viewed it, NEW again.
func (c *SampleCache[S]) RegisterInstance(key S, timestamp time.Time, publication PublicationHandle) {
	_, known := c.publications[publication]
	c.publications[publication] = struct{}{}

	switch c.instanceState {
	case AliveInstanceState:
		if !known {
			c.instanceElement = c.element(key, timestamp, publication)
		}
	case NotAliveDisposedInstanceState:
		c.disposedGenerationCount++
		c.instanceElement = c.element(key, timestamp, publication)
	case NotAliveNoWritersInstanceState:
		c.noWritersGenerationCount++
		c.instanceElement = c.element(key, timestamp, publication)
	}

	if c.instanceState != AliveInstanceState {
		if c.viewState == NotNewViewState {
			c.viewState = NewViewState
		}
		c.instanceElementState = placeholderNotRead
		c.instanceState = AliveInstanceState
	}
}

// Write registers publication and appends sample as a not-yet-read
// sample.
func (c *SampleCache[S]) Write(sample S, timestamp time.Time, publication PublicationHandle) {
	c.RegisterInstance(sample, timestamp, publication)
	c.newSamples = append(c.newSamples, c.element(sample, timestamp, publication))
}

// UnregisterInstance removes publication from the writers. When the
// last writer of an alive instance leaves, the instance becomes
// NOT_ALIVE_NO_WRITERS.
func (c *SampleCache[S]) UnregisterInstance(key S, timestamp time.Time, publication PublicationHandle) {
	delete(c.publications, publication)
	if c.instanceState == AliveInstanceState && len(c.publications) == 0 {
		c.instanceState = NotAliveNoWritersInstanceState
		c.instanceElement = c.element(key, timestamp, publication)
		c.instanceElementState = placeholderNotRead
	}
}

// DisposeInstance makes an alive instance NOT_ALIVE_DISPOSED. Writers
// stay registered.
func (c *SampleCache[S]) DisposeInstance(key S, timestamp time.Time, publication PublicationHandle) {
	if c.instanceState == AliveInstanceState {
		c.instanceState = NotAliveDisposedInstanceState
		c.instanceElement = c.element(key, timestamp, publication)
		c.instanceElementState = placeholderNotRead
	}
}

func (c *SampleCache[S]) info(e element[S], sampleState SampleState, valid bool) SampleInfo {
	return SampleInfo{
		SampleState:              sampleState,
		ViewState:                c.viewState,
		InstanceState:            c.instanceState,
		DisposedGenerationCount:  e.disposedGenerationCount,
		NoWritersGenerationCount: e.noWritersGenerationCount,
		AbsoluteGenerationRank:   c.disposedGenerationCount + c.noWritersGenerationCount - e.generations(),
		SourceTimestamp:          e.sourceTimestamp,
		InstanceHandle:           c.handle,
		PublicationHandle:        e.publicationHandle,
		ValidData:                valid,
	}
}

// Read appends up to max samples (counting what out already holds; a
// negative max is unlimited) without removing them. Not-read samples
// come before read samples. Returned not-read samples become read and
// the instance becomes NOT_NEW.
func (c *SampleCache[S]) Read(out *Collection[S], max int, sampleMask SampleState) {
	sizeBefore := out.Len()
	notReadRecent, readRecent := -1, -1
	consumed := 0

	if sampleMask&NotReadSampleState != 0 {
		for consumed < len(c.newSamples) && !out.full(max) {
			notReadRecent = out.Len()
			out.append(c.newSamples[consumed].sample, c.info(c.newSamples[consumed], NotReadSampleState, true))
			consumed++
		}

		if out.Len() == sizeBefore && !out.full(max) && c.instanceElementState == placeholderNotRead {
			notReadRecent = out.Len()
			out.append(c.instanceElement.sample, c.info(c.instanceElement, NotReadSampleState, false))
			c.instanceElementState = placeholderRead
		} else if out.Len() != sizeBefore {
			c.instanceElementState = placeholderRead
		}
	}

	if sampleMask&ReadSampleState != 0 {
		for i := 0; i < len(c.notNewSamples) && !out.full(max); i++ {
			readRecent = out.Len()
			out.append(c.notNewSamples[i].sample, c.info(c.notNewSamples[i], ReadSampleState, true))
		}

		if out.Len() == sizeBefore && !out.full(max) && c.instanceElementState == placeholderRead {
			readRecent = out.Len()
			out.append(c.instanceElement.sample, c.info(c.instanceElement, ReadSampleState, false))
		}
	}

	c.notNewSamples = append(c.notNewSamples, c.newSamples[:consumed]...)
	c.newSamples = dropFront(c.newSamples, consumed)
	c.viewState = NotNewViewState

	assignRanks(out.Infos[sizeBefore:], notReadRecent-sizeBefore, readRecent-sizeBefore)
}

// Take appends up to max samples like Read, but removes them, and
// returns read samples before not-read samples.
func (c *SampleCache[S]) Take(out *Collection[S], max int, sampleMask SampleState) {
	sizeBefore := out.Len()
	notReadRecent, readRecent := -1, -1

	if sampleMask&ReadSampleState != 0 {
		taken := 0
		for taken < len(c.notNewSamples) && !out.full(max) {
			readRecent = out.Len()
			out.append(c.notNewSamples[taken].sample, c.info(c.notNewSamples[taken], ReadSampleState, true))
			taken++
		}
		c.notNewSamples = dropFront(c.notNewSamples, taken)

		if out.Len() == sizeBefore && !out.full(max) && c.instanceElementState == placeholderRead {
			readRecent = out.Len()
			out.append(c.instanceElement.sample, c.info(c.instanceElement, ReadSampleState, false))
			c.instanceElementState = placeholderTaken
		} else if out.Len() != sizeBefore {
			c.instanceElementState = placeholderTaken
		}
	}

	if sampleMask&NotReadSampleState != 0 {
		taken := 0
		for taken < len(c.newSamples) && !out.full(max) {
			notReadRecent = out.Len()
			out.append(c.newSamples[taken].sample, c.info(c.newSamples[taken], NotReadSampleState, true))
			taken++
		}
		c.newSamples = dropFront(c.newSamples, taken)

		if out.Len() == sizeBefore && !out.full(max) && c.instanceElementState == placeholderNotRead {
			notReadRecent = out.Len()
			out.append(c.instanceElement.sample, c.info(c.instanceElement, NotReadSampleState, false))
			c.instanceElementState = placeholderTaken
		} else if out.Len() != sizeBefore {
			c.instanceElementState = placeholderTaken
		}
	}

	c.viewState = NotNewViewState

	assignRanks(out.Infos[sizeBefore:], notReadRecent-sizeBefore, readRecent-sizeBefore)
}

// assignRanks fills in sample and generation ranks for the infos one
// call produced. The most recent sample in the collection is the last
// not-read sample returned, or the last read sample if no not-read
// sample was returned.
func assignRanks(infos []SampleInfo, notReadRecent, readRecent int) {
	if len(infos) == 0 {
		return
	}
	recent := readRecent
	if notReadRecent >= 0 {
		recent = notReadRecent
	}
	mrsic := infos[recent].DisposedGenerationCount + infos[recent].NoWritersGenerationCount
	rank := len(infos)
	for i := range infos {
		rank--
		infos[i].SampleRank = rank
		infos[i].GenerationRank = mrsic - (infos[i].DisposedGenerationCount + infos[i].NoWritersGenerationCount)
	}
}

// Resize evicts the oldest samples, read ones first, until at most n
// remain. A negative n keeps everything.
func (c *SampleCache[S]) Resize(n int) {
	if n < 0 {
		return
	}
	if excess := c.Size() - n; excess > 0 {
		drop := min(excess, len(c.notNewSamples))
		c.notNewSamples = dropFront(c.notNewSamples, drop)
	}
	if excess := c.Size() - n; excess > 0 {
		c.newSamples = dropFront(c.newSamples, min(excess, len(c.newSamples)))
	}
}

// KeyValue returns the sample carrying the instance's key.
func (c *SampleCache[S]) KeyValue() S { return c.instanceElement.sample }

// Empty reports whether the cache holds no data samples.
func (c *SampleCache[S]) Empty() bool { return c.Size() == 0 }

// Size returns the number of data samples held.
func (c *SampleCache[S]) Size() int { return len(c.newSamples) + len(c.notNewSamples) }

// NewSize returns the number of samples not yet read.
func (c *SampleCache[S]) NewSize() int { return len(c.newSamples) }

// NotNewSize returns the number of samples already read.
func (c *SampleCache[S]) NotNewSize() int { return len(c.notNewSamples) }

// WriterCount returns the number of registered writers.
func (c *SampleCache[S]) WriterCount() int { return len(c.publications) }

// State returns the cache's combined state.
func (c *SampleCache[S]) State() CacheState {
	var sampleState SampleState
	if c.instanceElementState == placeholderNotRead || len(c.newSamples) > 0 {
		sampleState |= NotReadSampleState
	}
	if c.instanceElementState == placeholderRead || len(c.notNewSamples) > 0 {
		sampleState |= ReadSampleState
	}
	return CacheState{SampleState: sampleState, ViewState: c.viewState, InstanceState: c.instanceState}
}

// Initialize replaces the cache's history with a copy of other's, with
// every sample unread and the instance NEW again. Writers and
// generation counts are copied so that ranks computed against the copy
// stay consistent with the copied samples.
func (c *SampleCache[S]) Initialize(other *SampleCache[S]) {
	c.newSamples = make([]element[S], 0, other.Size())
	c.newSamples = append(c.newSamples, other.notNewSamples...)
	c.newSamples = append(c.newSamples, other.newSamples...)
	c.notNewSamples = nil
	c.viewState = NewViewState
	c.instanceState = other.instanceState
	c.instanceElementState = placeholderNotRead
	c.instanceElement = other.instanceElement
	c.disposedGenerationCount = other.disposedGenerationCount
	c.noWritersGenerationCount = other.noWritersGenerationCount
	c.publications = make(map[PublicationHandle]struct{}, len(other.publications))
	for publication := range other.publications {
		c.publications[publication] = struct{}{}
	}
}

// dropFront removes the first n elements, clearing them so the samples
// can be collected.
func dropFront[E any](list []E, n int) []E {
	if n == 0 {
		return list
	}
	clear(list[:n])
	if n == len(list) {
		return list[:0]
	}
	return list[n:]
}
