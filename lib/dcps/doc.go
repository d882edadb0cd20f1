// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dcps holds per-topic sample history for publish/subscribe
// readers and writers.
//
// A [SampleCache] is the history of one instance: the samples not yet
// read, the samples already read, and an instance element that reports
// instance state changes (disposal, loss of every writer) when no data
// sample does. A [Sink] is a reader's view of a topic and keeps one
// cache per instance, indexed by key, by handle, and by combined cache
// state so that masked reads only visit caches that can contribute. A
// [Source] is a writer: it fans every operation out to the sinks
// connected to it and keeps a bounded durability history that it
// replays into each sink as it connects.
//
// Sample, view, and instance states are bit masks. Read and take
// operations accept a mask of each; an instance is visited only when
// its current state intersects all three.
//
//	source := dcps.NewSource(keyOf)
//	sink := dcps.NewSink(keyOf, dcps.WithDepth(10))
//	source.Connect(sink)
//	source.Write(sample, time.Now())
//	got := sink.Take(dcps.LengthUnlimited, dcps.NotReadSampleState, dcps.AnyViewState, dcps.AliveInstanceState)
//
// The cache layer never fails: operations on unknown keys or handles do
// nothing, and lookups report absence through their results.
package dcps
