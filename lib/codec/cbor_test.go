// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
	"testing"
	"time"
)

type reading struct {
	Sensor    string    `cbor:"sensor"`
	Sequence  int64     `cbor:"sequence"`
	Value     float64   `cbor:"value,omitempty"`
	Timestamp time.Time `cbor:"timestamp"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := reading{Sensor: "a", Sequence: 7, Value: 1.5, Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 12, time.UTC)}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic:\n%x\n%x", first, again)
		}
	}
}

func TestUnmarshalKeepsNanoseconds(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	data, err := Marshal(reading{Sensor: "b", Timestamp: stamp})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded reading
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, stamp)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(reading{Sensor: "s", Sequence: int64(i)}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := range 3 {
		var decoded reading
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode item %d: %v", i, err)
		}
		if decoded.Sequence != int64(i) {
			t.Errorf("item %d has sequence %d", i, decoded.Sequence)
		}
	}
	var extra reading
	if err := decoder.Decode(&extra); err != io.EOF {
		t.Fatalf("Decode past end = %v, want io.EOF", err)
	}
}

func TestStreamDecoderPartialItem(t *testing.T) {
	data, err := Marshal(reading{Sensor: "partial", Sequence: 99})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoder := NewDecoder(bytes.NewReader(data[:len(data)-2]))
	var decoded reading
	if err := decoder.Decode(&decoded); err == nil {
		t.Fatal("Decode of truncated item succeeded")
	}
}
