// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

// Reading is the sample type carried on the link. Sensor is the
// instance key.
type Reading struct {
	Sensor   string  `cbor:"sensor"`
	Sequence uint64  `cbor:"sequence"`
	Celsius  float64 `cbor:"celsius"`
}

func readingSensor(r Reading) string { return r.Sensor }
