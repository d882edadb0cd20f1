// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"fmt"
	"sync"

	"github.com/OpenDDS/OpenDDS-sub024/lib/config"
)

// Direction is the side of a topic an endpoint is on.
type Direction uint8

const (
	Publish Direction = 1 << iota
	Subscribe

	Both = Publish | Subscribe
)

func (d Direction) String() string {
	switch d {
	case Publish:
		return "publish"
	case Subscribe:
		return "subscribe"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection parses "publish", "subscribe" or "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "publish":
		return Publish, nil
	case "subscribe":
		return Subscribe, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// AnyDomain makes a rule apply in every domain.
const AnyDomain = -1

// Rule allows, or with Deny set forbids, the matching topics and
// partitions in the given directions.
type Rule struct {
	Domain    int
	Topic     string
	Partition string // empty matches every partition
	Direction Direction
	Deny      bool
}

func (r Rule) matches(request request) bool {
	if r.Domain != AnyDomain && r.Domain != request.domain {
		return false
	}
	if r.Direction&request.direction == 0 {
		return false
	}
	if !MatchPattern(r.Topic, request.topic) {
		return false
	}
	return r.Partition == "" || MatchPattern(r.Partition, request.partition)
}

type request struct {
	domain    int
	topic     string
	partition string
	direction Direction
}

// Table answers access questions from a fixed rule list. Any matching
// deny rule wins; otherwise any matching allow rule allows; otherwise
// the request is denied. Decisions are computed once per distinct
// request and remembered.
type Table struct {
	rules     []Rule
	decisions sync.Map // request -> bool
}

// NewTable returns a table over rules.
func NewTable(rules ...Rule) *Table {
	return &Table{rules: rules}
}

// AllowAll returns a table that allows everything.
func AllowAll() *Table {
	return NewTable(Rule{Domain: AnyDomain, Topic: "**", Direction: Both})
}

// FromConfig builds a table from configured rules.
func FromConfig(rules []config.AccessRule) (*Table, error) {
	converted := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		direction, err := ParseDirection(rule.Direction)
		if err != nil {
			return nil, fmt.Errorf("access rule %d: %w", i, err)
		}
		domain := AnyDomain
		if rule.Domain != nil {
			domain = *rule.Domain
		}
		converted = append(converted, Rule{
			Domain:    domain,
			Topic:     rule.Topic,
			Partition: rule.Partition,
			Direction: direction,
			Deny:      rule.Deny,
		})
	}
	return NewTable(converted...), nil
}

// Allowed reports whether an endpoint in domain may use topic in
// partition in the given direction. Both asks for both directions at
// once and is allowed only if each is.
func (t *Table) Allowed(domain int, topic, partition string, direction Direction) bool {
	if direction == Both {
		return t.Allowed(domain, topic, partition, Publish) && t.Allowed(domain, topic, partition, Subscribe)
	}
	key := request{domain: domain, topic: topic, partition: partition, direction: direction}
	if decision, ok := t.decisions.Load(key); ok {
		return decision.(bool)
	}
	decision := t.decide(key)
	t.decisions.Store(key, decision)
	return decision
}

func (t *Table) decide(request request) bool {
	allowed := false
	for _, rule := range t.rules {
		if !rule.matches(request) {
			continue
		}
		if rule.Deny {
			return false
		}
		allowed = true
	}
	return allowed
}
