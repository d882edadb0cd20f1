// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dcps

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache activity per sink. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	samplesWritten  *prometheus.CounterVec
	samplesReturned *prometheus.CounterVec
	instances       *prometheus.GaugeVec
}

// NewMetrics creates the cache metrics and registers them with
// registerer. A nil registerer leaves them unregistered, which is what
// tests usually want.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcps",
			Subsystem: "sink",
			Name:      "samples_written_total",
			Help:      "Samples stored into a sink.",
		}, []string{"sink"}),
		samplesReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcps",
			Subsystem: "sink",
			Name:      "samples_returned_total",
			Help:      "Samples returned by read and take, including invalid-data entries.",
		}, []string{"sink", "operation"}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dcps",
			Subsystem: "sink",
			Name:      "instances",
			Help:      "Instances known to a sink.",
		}, []string{"sink"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.samplesWritten, m.samplesReturned, m.instances)
	}
	return m
}

func (m *Metrics) written(sink string) {
	if m == nil {
		return
	}
	m.samplesWritten.WithLabelValues(sink).Inc()
}

func (m *Metrics) returned(sink, operation string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.samplesReturned.WithLabelValues(sink, operation).Add(float64(count))
}

func (m *Metrics) setInstances(sink string, count int) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(sink).Set(float64(count))
}
