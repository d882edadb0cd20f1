// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the named Transports of a process. It is created
// explicitly and passed to whatever needs to look transports up.
type Registry struct {
	mu         sync.Mutex
	transports map[string]*Transport
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]*Transport)}
}

// Register adds transport under name. Names are unique.
func (r *Registry) Register(name string, transport *Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[name]; exists {
		return fmt.Errorf("transport %q already registered", name)
	}
	r.transports[name] = transport
	return nil
}

// Get returns the transport registered under name.
func (r *Registry) Get(name string) (*Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transport, ok := r.transports[name]
	return transport, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes and forgets every registered transport.
func (r *Registry) Close() error {
	r.mu.Lock()
	transports := r.transports
	r.transports = make(map[string]*Transport)
	r.mu.Unlock()

	var errs []error
	for name, transport := range transports {
		if err := transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing transport %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
