// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"log/slog"

	"github.com/OpenDDS/OpenDDS-sub024/lib/access"
	"github.com/OpenDDS/OpenDDS-sub024/lib/clock"
	"github.com/OpenDDS/OpenDDS-sub024/lib/dcps"
)

// ErrAccessDenied is returned when the access table does not allow an
// endpoint on its topic and partition.
var ErrAccessDenied = errors.New("bridge: access denied")

// Option configures a Publisher, Subscriber or Router.
type Option func(*settings)

type settings struct {
	domain    int
	partition string
	access    *access.Table
	logger    *slog.Logger
	clock     clock.Clock

	durabilityDepth int
	sourceOptions   []dcps.SourceOption
}

func newSettings(options []Option) settings {
	s := settings{
		access: access.AllowAll(),
		logger: slog.Default(),
		clock:  clock.Real(),

		durabilityDepth: 1,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

// WithDomain sets the DDS domain. Default 0.
func WithDomain(domain int) Option {
	return func(s *settings) { s.domain = domain }
}

// WithPartition sets the partition a Publisher writes in, or the
// partition pattern a Subscriber accepts. A Subscriber with no
// partition accepts every partition.
func WithPartition(partition string) Option {
	return func(s *settings) { s.partition = partition }
}

// WithAccess sets the access table. Default: allow everything.
func WithAccess(table *access.Table) Option {
	return func(s *settings) { s.access = table }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock sets the clock used for timestamps the bridge makes up
// itself. Default: clock.Real().
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithDurabilityDepth bounds the history each remote writer keeps for
// replay into Sinks that connect to a Subscriber later. Default 1.
func WithDurabilityDepth(depth int) Option {
	return func(s *settings) { s.durabilityDepth = depth }
}

// WithSourceOptions passes options to the dcps.Source a Subscriber
// creates for each remote writer.
func WithSourceOptions(options ...dcps.SourceOption) Option {
	return func(s *settings) { s.sourceOptions = append(s.sourceOptions, options...) }
}
