// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import (
	"fmt"
	"strings"
)

// SampleState says whether a reader has already seen a sample. Values
// are bits so that masks can combine them.
type SampleState uint32

const (
	ReadSampleState    SampleState = 1 << 0
	NotReadSampleState SampleState = 1 << 1

	NoSampleState  SampleState = 0
	AnySampleState             = ReadSampleState | NotReadSampleState
)

func (s SampleState) String() string {
	return maskString(uint32(s), []string{"READ", "NOT_READ"})
}

// ViewState says whether the reader has seen the current incarnation
// of an instance.
type ViewState uint32

const (
	NewViewState    ViewState = 1 << 0
	NotNewViewState ViewState = 1 << 1

	AnyViewState = NewViewState | NotNewViewState
)

func (s ViewState) String() string {
	return maskString(uint32(s), []string{"NEW", "NOT_NEW"})
}

// InstanceState is the liveliness of an instance.
type InstanceState uint32

const (
	AliveInstanceState             InstanceState = 1 << 0
	NotAliveDisposedInstanceState  InstanceState = 1 << 1
	NotAliveNoWritersInstanceState InstanceState = 1 << 2

	NotAliveInstanceState = NotAliveDisposedInstanceState | NotAliveNoWritersInstanceState
	AnyInstanceState      = AliveInstanceState | NotAliveInstanceState
)

func (s InstanceState) String() string {
	return maskString(uint32(s), []string{"ALIVE", "NOT_ALIVE_DISPOSED", "NOT_ALIVE_NO_WRITERS"})
}

// CacheState is the combined state of one SampleCache. A Sink files
// each cache under its CacheState so that masked reads only visit
// caches that can contribute.
type CacheState struct {
	SampleState   SampleState
	ViewState     ViewState
	InstanceState InstanceState
}

// Matches reports whether the state intersects all three masks.
func (s CacheState) Matches(sampleMask SampleState, viewMask ViewState, instanceMask InstanceState) bool {
	return s.SampleState&sampleMask != 0 &&
		s.ViewState&viewMask != 0 &&
		s.InstanceState&instanceMask != 0
}

// Compare orders states by sample state descending, then view state
// and instance state ascending. It returns -1, 0 or 1.
func (s CacheState) Compare(other CacheState) int {
	switch {
	case s.SampleState != other.SampleState:
		if s.SampleState > other.SampleState {
			return -1
		}
		return 1
	case s.ViewState != other.ViewState:
		if s.ViewState < other.ViewState {
			return -1
		}
		return 1
	case s.InstanceState != other.InstanceState:
		if s.InstanceState < other.InstanceState {
			return -1
		}
		return 1
	}
	return 0
}

func (s CacheState) String() string {
	return fmt.Sprintf("(%v, %v, %v)", s.SampleState, s.ViewState, s.InstanceState)
}

func maskString(mask uint32, names []string) string {
	if mask == 0 {
		return "NONE"
	}
	var parts []string
	for bit, name := range names {
		if mask&(1<<bit) != 0 {
			parts = append(parts, name)
			mask &^= 1 << bit
		}
	}
	if mask != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", mask))
	}
	return strings.Join(parts, "|")
}
