// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import (
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

func b(value int) testSample { return testSample{Key: "b", Value: value} }
func c(value int) testSample { return testSample{Key: "c", Value: value} }

func newTestSink(options ...SinkOption) *Sink[testSample, string] {
	return NewSink(testKey, options...)
}

func handlesOf(infos []SampleInfo) []InstanceHandle {
	handles := make([]InstanceHandle, len(infos))
	for i, info := range infos {
		handles[i] = info.InstanceHandle
	}
	return handles
}

func TestSinkLookupInstance(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)
	sink.Write(a(1), sourceTimestamp, publication1)

	if got := sink.LookupInstance(a(7)); got != 1 {
		t.Errorf("LookupInstance(a) = %d, want 1", got)
	}
	if got := sink.LookupInstance(b(7)); got != 2 {
		t.Errorf("LookupInstance(b) = %d, want 2", got)
	}
	if got := sink.LookupInstance(c(0)); got != HandleNil {
		t.Errorf("LookupInstance(unseen) = %d, want HandleNil", got)
	}
	if sink.Len() != 2 {
		t.Errorf("Len() = %d, want 2", sink.Len())
	}
}

func TestSinkUnknownInstanceIsNoop(t *testing.T) {
	sink := newTestSink()
	var scheduled atomic.Int32
	sink.SetObserver(observerFunc(func() { scheduled.Add(1) }))

	sink.UnregisterInstance(a(0), sourceTimestamp, publication1)
	sink.DisposeInstance(a(0), sourceTimestamp, publication1)

	if sink.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sink.Len())
	}
	if got := sink.ReadInstance(5, LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState); got.Len() != 0 {
		t.Errorf("ReadInstance(unknown) returned %d samples", got.Len())
	}
	if _, ok := sink.GetKeyValue(5); ok {
		t.Error("GetKeyValue(unknown) reported ok")
	}
	if scheduled.Load() != 0 {
		t.Errorf("observer scheduled %d times for no-op operations", scheduled.Load())
	}
}

func TestSinkReadVisitsBucketsInStateOrder(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)

	first := sink.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{a(0), b(0)}, first.Samples); diff != "" {
		t.Fatalf("first read (-want +got):\n%s", diff)
	}

	// b now holds a not-read sample, which sorts ahead of a's read-only
	// bucket.
	sink.Write(b(1), sourceTimestamp, publication1)
	second := sink.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{b(1), b(0), a(0)}, second.Samples); diff != "" {
		t.Fatalf("second read (-want +got):\n%s", diff)
	}
	wantStates := []SampleState{NotReadSampleState, ReadSampleState, ReadSampleState}
	for i, info := range second.Infos {
		if info.SampleState != wantStates[i] {
			t.Errorf("info %d sample state = %v, want %v", i, info.SampleState, wantStates[i])
		}
	}
}

func TestSinkTakeHonorsMasks(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)
	sink.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	sink.Write(a(1), sourceTimestamp, publication1)

	got := sink.Take(LengthUnlimited, NotReadSampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{a(1)}, got.Samples); diff != "" {
		t.Fatalf("take not-read (-want +got):\n%s", diff)
	}

	if got := sink.Take(LengthUnlimited, AnySampleState, NewViewState, AnyInstanceState); got.Len() != 0 {
		t.Fatalf("take NEW view returned %v", got.Samples)
	}

	sink.DisposeInstance(b(0), sourceTimestamp, publication1)
	got = sink.Read(LengthUnlimited, AnySampleState, AnyViewState, NotAliveDisposedInstanceState)
	if diff := cmp.Diff([]testSample{b(0), b(0)}, got.Samples); diff != "" {
		t.Fatalf("read disposed (-want +got):\n%s", diff)
	}
	if got.Infos[0].ValidData || !got.Infos[1].ValidData {
		t.Errorf("valid data = %v, %v; want placeholder then data", got.Infos[0].ValidData, got.Infos[1].ValidData)
	}
}

func TestSinkMaxSpansInstances(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(a(1), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)

	got := sink.Read(2, AnySampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{a(0), a(1)}, got.Samples); diff != "" {
		t.Fatalf("read max 2 (-want +got):\n%s", diff)
	}
	got = sink.Read(2, NotReadSampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{b(0)}, got.Samples); diff != "" {
		t.Fatalf("read remaining not-read (-want +got):\n%s", diff)
	}
}

func TestSinkNextSample(t *testing.T) {
	sink := newTestSink()
	if _, _, ok := sink.ReadNextSample(); ok {
		t.Fatal("ReadNextSample on empty sink reported ok")
	}

	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(a(1), sourceTimestamp, publication1)

	sample, info, ok := sink.ReadNextSample()
	if !ok || sample != a(0) || info.SampleState != NotReadSampleState {
		t.Fatalf("ReadNextSample = %v, %v, %v", sample, info.SampleState, ok)
	}
	sample, _, ok = sink.TakeNextSample()
	if !ok || sample != a(1) {
		t.Fatalf("TakeNextSample = %v, %v; want a1", sample, ok)
	}
	if _, _, ok := sink.TakeNextSample(); ok {
		t.Fatal("TakeNextSample found a not-read sample after all were consumed")
	}
}

func TestSinkNextInstanceCursor(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)
	sink.Write(c(0), sourceTimestamp, publication1)

	// Empty b so the cursor has to skip it.
	if got := sink.TakeInstance(2, LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState); got.Len() != 1 {
		t.Fatalf("TakeInstance(b) returned %d samples, want 1", got.Len())
	}

	var visited []InstanceHandle
	for previous := HandleNil; ; {
		got, ok := sink.ReadNextInstance(previous, LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
		if !ok {
			break
		}
		handle := got.Infos[0].InstanceHandle
		for _, info := range got.Infos {
			if info.InstanceHandle != handle {
				t.Fatalf("ReadNextInstance mixed instances: %v", handlesOf(got.Infos))
			}
		}
		visited = append(visited, handle)
		previous = handle
	}
	if diff := cmp.Diff([]InstanceHandle{1, 3}, visited); diff != "" {
		t.Fatalf("cursor visited (-want +got):\n%s", diff)
	}

	got, ok := sink.TakeNextInstance(1, LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if !ok || got.Infos[0].InstanceHandle != 3 {
		t.Fatalf("TakeNextInstance(1) = %v, %v; want instance 3", handlesOf(got.Infos), ok)
	}
	if _, ok := sink.TakeNextInstance(1, LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState); ok {
		t.Fatal("TakeNextInstance found data after every instance was taken")
	}
}

func TestSinkGetKeyValue(t *testing.T) {
	sink := newTestSink()
	sink.Write(a(3), sourceTimestamp, publication1)

	key, ok := sink.GetKeyValue(sink.LookupInstance(a(0)))
	if !ok || key.Key != "a" {
		t.Fatalf("GetKeyValue = %v, %v", key, ok)
	}
	// The key survives taking every sample.
	sink.Take(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if key, ok := sink.GetKeyValue(1); !ok || key.Key != "a" {
		t.Fatalf("GetKeyValue after take = %v, %v", key, ok)
	}
}

func TestSinkDepth(t *testing.T) {
	sink := newTestSink(WithDepth(2))
	for i := range 4 {
		sink.Write(a(i), sourceTimestamp, publication1)
	}
	got := sink.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{a(2), a(3)}, got.Samples); diff != "" {
		t.Fatalf("read with depth 2 (-want +got):\n%s", diff)
	}
	if sink.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", sink.Depth())
	}
}

func TestSinkRegisterUnregisterTake(t *testing.T) {
	sink := newTestSink()
	sink.RegisterInstance(a(0), sourceTimestamp, publication1)
	sink.UnregisterInstance(a(0), sourceTimestamp, publication1)

	got := sink.Take(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if got.Len() != 1 {
		t.Fatalf("take returned %d samples, want 1", got.Len())
	}
	if got.Infos[0].InstanceState != NotAliveNoWritersInstanceState || got.Infos[0].ValidData {
		t.Fatalf("info = %+v, want invalid NOT_ALIVE_NO_WRITERS", got.Infos[0])
	}
}

func TestSinkInitialize(t *testing.T) {
	source := newTestSink()
	source.Write(a(0), sourceTimestamp, publication1)
	source.Write(a(1), sourceTimestamp, publication1)
	source.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	source.Write(b(0), sourceTimestamp, publication1)

	destination := newTestSink()
	destination.Write(a(9), sourceTimestamp, publication2)

	var scheduled atomic.Int32
	destination.SetObserver(observerFunc(func() { scheduled.Add(1) }))
	destination.Initialize(source)

	if destination.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", destination.Len())
	}
	if got := destination.LookupInstance(a(0)); got != 2 {
		t.Errorf("replaced instance handle = %d, want 2", got)
	}
	if _, ok := destination.GetKeyValue(1); ok {
		t.Error("replaced instance handle 1 is still known")
	}

	got := destination.Read(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)
	if diff := cmp.Diff([]testSample{a(0), a(1), b(0)}, got.Samples); diff != "" {
		t.Fatalf("initialized read (-want +got):\n%s", diff)
	}
	for i, info := range got.Infos {
		if info.SampleState != NotReadSampleState || info.ViewState != NewViewState {
			t.Errorf("info %d = %v/%v, want NOT_READ/NEW", i, info.SampleState, info.ViewState)
		}
	}
	if scheduled.Load() != 1 {
		t.Errorf("observer scheduled %d times, want 1", scheduled.Load())
	}

	// The source's own read state is untouched.
	if got := source.Read(LengthUnlimited, NotReadSampleState, AnyViewState, AnyInstanceState); len(got.Samples) != 1 || got.Samples[0] != b(0) {
		t.Errorf("source not-read samples = %v, want [b0]", got.Samples)
	}
}

func TestSinkObserverRunsOutsideLock(t *testing.T) {
	sink := newTestSink()
	var sizes []int
	sink.SetObserver(observerFunc(func() {
		// Deadlocks if the sink still holds its lock.
		sizes = append(sizes, sink.Len())
	}))

	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)
	sink.DisposeInstance(a(0), sourceTimestamp, publication1)

	if diff := cmp.Diff([]int{1, 2, 2}, sizes); diff != "" {
		t.Fatalf("observer saw (-want +got):\n%s", diff)
	}
}

func TestSinkMetrics(t *testing.T) {
	metrics := NewMetrics(nil)
	sink := newTestSink(WithMetrics(metrics, "orders"))
	sink.Write(a(0), sourceTimestamp, publication1)
	sink.Write(a(1), sourceTimestamp, publication1)
	sink.Write(b(0), sourceTimestamp, publication1)
	sink.Read(1, AnySampleState, AnyViewState, AnyInstanceState)
	sink.Take(LengthUnlimited, AnySampleState, AnyViewState, AnyInstanceState)

	if got := promtestutil.ToFloat64(metrics.samplesWritten.WithLabelValues("orders")); got != 3 {
		t.Errorf("samples written = %v, want 3", got)
	}
	if got := promtestutil.ToFloat64(metrics.samplesReturned.WithLabelValues("orders", "read")); got != 1 {
		t.Errorf("samples read = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(metrics.samplesReturned.WithLabelValues("orders", "take")); got != 3 {
		t.Errorf("samples taken = %v, want 3", got)
	}
	if got := promtestutil.ToFloat64(metrics.instances.WithLabelValues("orders")); got != 2 {
		t.Errorf("instances = %v, want 2", got)
	}
}

type observerFunc func()

func (f observerFunc) Schedule() { f() }
