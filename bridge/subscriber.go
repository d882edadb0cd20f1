// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/OpenDDS/OpenDDS-sub024/lib/access"
	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/lib/dcps"
	"github.com/OpenDDS/OpenDDS-sub024/transport"
)

// writerID names one remote writer: the publication a peer announced
// on a link. Publication numbers are only unique per peer process, so
// the remote address is part of the identity.
type writerID struct {
	remote      string
	publication uint64
}

// Subscriber applies the messages of one topic to the Sinks connected
// to it. Each remote writer gets its own dcps.Source, and with it its
// own publication handle, so an instance stays alive while any writer
// still holds it.
type Subscriber[S any, K comparable] struct {
	topic         string
	domain        int
	partition     string
	key           func(S) K
	logger        *slog.Logger
	sourceOptions []dcps.SourceOption

	mu      sync.Mutex
	sinks   []*dcps.Sink[S, K]
	writers map[writerID]*dcps.Source[S, K]
}

// NewSubscriber creates a subscriber for topic. key must be the key
// function of the sinks later connected to it. It fails with
// ErrAccessDenied if the access table does not allow subscribing.
func NewSubscriber[S any, K comparable](topic string, key func(S) K, options ...Option) (*Subscriber[S, K], error) {
	settings := newSettings(options)
	if !settings.access.Allowed(settings.domain, topic, settings.partition, access.Subscribe) {
		return nil, fmt.Errorf("%w: subscribe %q in partition %q", ErrAccessDenied, topic, settings.partition)
	}
	return &Subscriber[S, K]{
		topic:     topic,
		domain:    settings.domain,
		partition: settings.partition,
		key:       key,
		logger:    settings.logger.With("topic", topic),
		sourceOptions: append([]dcps.SourceOption{
			dcps.WithClock(settings.clock),
			dcps.WithDurabilityDepth(settings.durabilityDepth),
		}, settings.sourceOptions...),
		writers: make(map[writerID]*dcps.Source[S, K]),
	}, nil
}

// Topic returns the subscriber's topic.
func (s *Subscriber[S, K]) Topic() string { return s.topic }

// Connect attaches sink to every current and future remote writer.
// Writers already known replay their durability history into it.
func (s *Subscriber[S, K]) Connect(sink *dcps.Sink[S, K]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.sinks, sink) {
		return
	}
	s.sinks = append(s.sinks, sink)
	for _, writer := range s.writers {
		writer.Connect(sink)
	}
}

// Disconnect detaches sink. Every instance a remote writer holds is
// unregistered in sink under that writer's handle.
func (s *Subscriber[S, K]) Disconnect(sink *dcps.Sink[S, K]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = slices.DeleteFunc(s.sinks, func(connected *dcps.Sink[S, K]) bool { return connected == sink })
	for _, writer := range s.writers {
		writer.Disconnect(sink)
	}
}

// Writers returns the number of remote writers the subscriber knows.
func (s *Subscriber[S, K]) Writers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writers)
}

func (s *Subscriber[S, K]) accepts(message transport.Message) bool {
	if message.Domain != s.domain {
		return false
	}
	return s.partition == "" || access.MatchPattern(s.partition, message.Partition)
}

// writer returns the source standing in for id, creating it and
// connecting it to every sink on first use.
func (s *Subscriber[S, K]) writer(id writerID) *dcps.Source[S, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if writer, ok := s.writers[id]; ok {
		return writer
	}
	writer := dcps.NewSource(s.key, s.sourceOptions...)
	for _, sink := range s.sinks {
		writer.Connect(sink)
	}
	s.writers[id] = writer
	s.logger.Debug("remote writer appeared",
		"remote", id.remote, "publication", id.publication, "handle", writer.PublicationHandle())
	return writer
}

func (s *Subscriber[S, K]) deliver(message transport.Message, remoteAddress string) {
	if !s.accepts(message) {
		s.logger.Debug("ignoring message outside domain or partition",
			"domain", message.Domain, "partition", message.Partition)
		return
	}
	var sample S
	if err := codec.Unmarshal(message.Payload, &sample); err != nil {
		s.logger.Warn("dropping undecodable sample", "remote", remoteAddress, "error", err)
		return
	}

	writer := s.writer(writerID{remote: remoteAddress, publication: message.Publication})
	switch message.Operation {
	case transport.OperationRegister:
		writer.RegisterInstance(sample, message.Timestamp)
	case transport.OperationWrite:
		writer.Write(sample, message.Timestamp)
	case transport.OperationUnregister:
		writer.UnregisterInstance(sample, message.Timestamp)
	case transport.OperationDispose:
		writer.DisposeInstance(sample, message.Timestamp)
	default:
		s.logger.Warn("dropping message with unknown operation", "operation", message.Operation)
	}
}

// linkLost retires every writer that arrived over remoteAddress. Each
// one unregisters its instances in the sinks under its own handle, so
// instances other writers still hold stay alive.
func (s *Subscriber[S, K]) linkLost(remoteAddress string) {
	s.mu.Lock()
	var lost []*dcps.Source[S, K]
	for id, writer := range s.writers {
		if id.remote == remoteAddress {
			lost = append(lost, writer)
			delete(s.writers, id)
		}
	}
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()

	if len(lost) == 0 {
		return
	}
	s.logger.Info("retiring writers of lost link", "remote", remoteAddress, "writers", len(lost))
	for _, writer := range lost {
		for _, sink := range sinks {
			writer.Disconnect(sink)
		}
	}
}
