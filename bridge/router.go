// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/OpenDDS/OpenDDS-sub024/lib/access"
	"github.com/OpenDDS/OpenDDS-sub024/transport"
)

// Compile-time interface checks.
var (
	_ transport.Deliverer    = (*Router)(nil)
	_ transport.LinkListener = (*Router)(nil)
)

// route is the untyped face of a Subscriber.
type route interface {
	deliver(message transport.Message, remoteAddress string)
	linkLost(remoteAddress string)
}

// Router dispatches a transport's messages to Subscribers by topic and
// tells them about lost links.
type Router struct {
	access *access.Table
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// NewRouter creates a Router. Only WithAccess and WithLogger apply.
func NewRouter(options ...Option) *Router {
	settings := newSettings(options)
	return &Router{
		access: settings.access,
		logger: settings.logger,
		routes: make(map[string]route),
	}
}

// Subscribe registers subscriber for its topic. One subscriber per
// topic.
func Subscribe[S any, K comparable](router *Router, subscriber *Subscriber[S, K]) error {
	router.mu.Lock()
	defer router.mu.Unlock()
	if _, exists := router.routes[subscriber.topic]; exists {
		return fmt.Errorf("bridge: topic %q already has a subscriber", subscriber.topic)
	}
	router.routes[subscriber.topic] = subscriber
	return nil
}

// Unsubscribe removes the subscriber for topic.
func (r *Router) Unsubscribe(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, topic)
}

// Deliver implements transport.Deliverer.
func (r *Router) Deliver(message transport.Message, remoteAddress string) {
	if !r.access.Allowed(message.Domain, message.Topic, message.Partition, access.Subscribe) {
		r.logger.Debug("access denied, dropping message",
			"topic", message.Topic, "partition", message.Partition, "remote", remoteAddress)
		return
	}
	r.mu.RLock()
	target, ok := r.routes[message.Topic]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("no subscriber for topic", "topic", message.Topic)
		return
	}
	target.deliver(message, remoteAddress)
}

// LinkEvent implements transport.LinkListener.
func (r *Router) LinkEvent(link *transport.DataLink, event transport.Event) {
	if event != transport.EventLost {
		return
	}
	r.mu.RLock()
	routes := make([]route, 0, len(r.routes))
	for _, target := range r.routes {
		routes = append(routes, target)
	}
	r.mu.RUnlock()
	for _, target := range routes {
		target.linkLost(link.RemoteAddress())
	}
}
