// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts link activity for one Transport. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	stateTransitions  *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	relinks           prometheus.Counter
	sendTerminations  prometheus.Counter
	framesSent        prometheus.Counter
	framesReceived    prometheus.Counter
	bytesSent         prometheus.Counter
	acceptedSockets   prometheus.Counter
	queuedFrames      prometheus.Gauge
	events            *prometheus.CounterVec
}

// NewMetrics creates the transport metrics and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dcps", Subsystem: "transport", Name: name, Help: help,
		})
	}
	m := &Metrics{
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcps",
			Subsystem: "transport",
			Name:      "reconnect_state_transitions_total",
			Help:      "Connection reconnect state changes, by new state.",
		}, []string{"state"}),
		reconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcps",
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Connector reconnect attempts, by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcps",
			Subsystem: "transport",
			Name:      "link_events_total",
			Help:      "Link notifications, by event.",
		}, []string{"event"}),
		relinks:          counter("relinks_total", "Connection loss reports from the send and receive strategies."),
		sendTerminations: counter("send_terminations_total", "Send strategies terminated by a lost link."),
		framesSent:       counter("frames_sent_total", "Data frames written to a socket."),
		framesReceived:   counter("frames_received_total", "Data frames read from a socket."),
		bytesSent:        counter("sent_bytes_total", "Bytes of data frames written to a socket."),
		acceptedSockets:  counter("accepted_sockets_total", "Sockets accepted that completed the hello."),
		queuedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dcps",
			Subsystem: "transport",
			Name:      "queued_frames",
			Help:      "Frames waiting in send strategies.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(
			m.stateTransitions, m.reconnectAttempts, m.events, m.relinks,
			m.sendTerminations, m.framesSent, m.framesReceived, m.bytesSent,
			m.acceptedSockets, m.queuedFrames,
		)
	}
	return m
}

func (m *Metrics) transition(state ReconnectState) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) attempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reconnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) event(event Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event.String()).Inc()
}

func (m *Metrics) relink() {
	if m == nil {
		return
	}
	m.relinks.Inc()
}

func (m *Metrics) terminated() {
	if m == nil {
		return
	}
	m.sendTerminations.Inc()
}

func (m *Metrics) sent(size int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) accepted() {
	if m == nil {
		return
	}
	m.acceptedSockets.Inc()
}

func (m *Metrics) queued(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.queuedFrames.Add(float64(delta))
}
