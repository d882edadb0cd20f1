// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/access"
	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
	"github.com/OpenDDS/OpenDDS-sub024/transport"
)

var nextPublication atomic.Uint64

// Publisher sends the samples of one topic to every attached link.
type Publisher[S any] struct {
	topic       string
	domain      int
	partition   string
	publication uint64
	logger      *slog.Logger
	sequence    atomic.Uint64

	mu    sync.Mutex
	links []*transport.DataLink
}

// NewPublisher creates a publisher for topic. It fails with
// ErrAccessDenied if the access table does not allow publishing.
func NewPublisher[S any](topic string, options ...Option) (*Publisher[S], error) {
	settings := newSettings(options)
	if !settings.access.Allowed(settings.domain, topic, settings.partition, access.Publish) {
		return nil, fmt.Errorf("%w: publish %q in partition %q", ErrAccessDenied, topic, settings.partition)
	}
	return &Publisher[S]{
		topic:       topic,
		domain:      settings.domain,
		partition:   settings.partition,
		publication: nextPublication.Add(1),
		logger:      settings.logger.With("topic", topic),
	}, nil
}

// Topic returns the publisher's topic.
func (p *Publisher[S]) Topic() string { return p.topic }

// AddLink starts sending on link.
func (p *Publisher[S]) AddLink(link *transport.DataLink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.links, link) {
		p.links = append(p.links, link)
	}
}

// RemoveLink stops sending on link.
func (p *Publisher[S]) RemoveLink(link *transport.DataLink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = slices.DeleteFunc(p.links, func(l *transport.DataLink) bool { return l == link })
}

// RegisterInstance announces the instance of sample.
func (p *Publisher[S]) RegisterInstance(sample S, timestamp time.Time) error {
	return p.publish(transport.OperationRegister, sample, timestamp)
}

// Write sends a sample.
func (p *Publisher[S]) Write(sample S, timestamp time.Time) error {
	return p.publish(transport.OperationWrite, sample, timestamp)
}

// UnregisterInstance withdraws from the instance of sample.
func (p *Publisher[S]) UnregisterInstance(sample S, timestamp time.Time) error {
	return p.publish(transport.OperationUnregister, sample, timestamp)
}

// DisposeInstance disposes the instance of sample.
func (p *Publisher[S]) DisposeInstance(sample S, timestamp time.Time) error {
	return p.publish(transport.OperationDispose, sample, timestamp)
}

// publish sends to every link and reports the links that refused.
func (p *Publisher[S]) publish(operation transport.Operation, sample S, timestamp time.Time) error {
	payload, err := codec.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encoding %s sample: %w", p.topic, err)
	}
	message := transport.Message{
		Domain:      p.domain,
		Topic:       p.topic,
		Partition:   p.partition,
		Operation:   operation,
		Timestamp:   timestamp,
		Publication: p.publication,
		Sequence:    p.sequence.Add(1),
		Payload:     payload,
	}

	p.mu.Lock()
	links := slices.Clone(p.links)
	p.mu.Unlock()

	var errs []error
	for _, link := range links {
		if err := link.Send(message); err != nil {
			p.logger.Debug("send failed", "remote", link.RemoteAddress(), "operation", operation, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", link.RemoteAddress(), err))
		}
	}
	return errors.Join(errs...)
}
