// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package access decides whether an endpoint may publish or subscribe
// on a topic and partition.
//
// Policy documents are not evaluated here: a [Table] is built from an
// already-resolved list of allow and deny rules (usually the access
// section of a link config) and answers Allowed questions, remembering
// each answer. Topic and partition patterns use [MatchPattern] globs.
// The default is deny.
package access
