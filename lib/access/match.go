// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"path"
	"strings"
)

// MatchPattern checks whether a topic or partition name matches a glob
// pattern. Names are hierarchical, with "/" separating segments:
//
//   - Exact match: "sensors/temp" matches only "sensors/temp"
//   - Single-segment wildcard: "sensors/*" matches "sensors/temp" but
//     not "sensors/lab/temp"
//   - Recursive wildcard: "**" as a whole segment matches zero or more
//     segments, so "sensors/**" matches "sensors", "sensors/temp" and
//     "sensors/lab/temp", and "**/temp" matches any name ending in
//     "temp"
//   - Character wildcards: "?" matches one non-slash character, and
//     "[...]" classes follow path.Match
//
// A malformed pattern matches nothing.
func MatchPattern(pattern, name string) bool {
	if pattern == "**" {
		return true
	}
	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, name)
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			// ** consumes zero or more non-empty segments.
			for consumed := 0; consumed <= len(name); consumed++ {
				if consumed > 0 && name[consumed-1] == "" {
					return false
				}
				if matchSegments(rest, name[consumed:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 || !matchGlob(pattern[0], name[0]) {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}

func matchGlob(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// MatchAnyPattern reports whether name matches any of patterns. An
// empty list matches nothing.
func MatchAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}
