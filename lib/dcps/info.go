// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import "time"

// InstanceHandle identifies one instance within a Sink. Zero is never
// assigned and means "no instance".
type InstanceHandle uint64

// HandleNil is the reserved "no instance" handle.
const HandleNil InstanceHandle = 0

// PublicationHandle identifies a writer.
type PublicationHandle uint64

// LengthUnlimited requests every available sample, or an unbounded
// history depth.
const LengthUnlimited = -1

// SampleInfo describes one sample returned by a read or take.
type SampleInfo struct {
	SampleState   SampleState
	ViewState     ViewState
	InstanceState InstanceState

	DisposedGenerationCount  int
	NoWritersGenerationCount int

	// SampleRank counts the samples of the same instance that follow
	// this one in the returned collection.
	SampleRank int
	// GenerationRank is the number of generations between this sample
	// and the most recent sample of the instance in the collection.
	GenerationRank int
	// AbsoluteGenerationRank is the number of generations between this
	// sample and the instance as it is now.
	AbsoluteGenerationRank int

	SourceTimestamp   time.Time
	InstanceHandle    InstanceHandle
	PublicationHandle PublicationHandle

	// ValidData is false when the entry only reports an instance state
	// change and the sample carries nothing but the key.
	ValidData bool
}

// Collection accumulates the output of read and take operations.
type Collection[S any] struct {
	Samples []S
	Infos   []SampleInfo
}

// Len returns the number of samples collected.
func (c *Collection[S]) Len() int { return len(c.Samples) }

func (c *Collection[S]) append(sample S, info SampleInfo) {
	c.Samples = append(c.Samples, sample)
	c.Infos = append(c.Infos, info)
}

// full reports whether max samples have been collected. A negative max
// never fills.
func (c *Collection[S]) full(max int) bool {
	return max >= 0 && len(c.Samples) >= max
}
