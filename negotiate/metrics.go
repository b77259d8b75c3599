// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for negotiations.
//
// Methods handle a nil receiver, so a nil *Metrics disables collection.
type Metrics struct {
	// Steps counts Step calls.
	// Labels: role=[client, server], status=[complete, continue, error]
	Steps *prometheus.CounterVec

	// Handshakes counts finished negotiations.
	// Labels: role=[client, server], result=[success, failure]
	Handshakes *prometheus.CounterVec

	// ActiveStates tracks negotiation states that have not been cleaned.
	// Labels: role=[client, server]
	ActiveStates *prometheus.GaugeVec

	// MessageOps counts Wrap and Unwrap calls.
	// Labels: op=[wrap, unwrap], result=[success, failure]
	MessageOps *prometheus.CounterVec

	// StepDuration tracks Step processing time.
	// Labels: role=[client, server]
	StepDuration *prometheus.HistogramVec
}

// NewMetrics creates the negotiation metrics and registers them with registerer.  If
// registerer is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gssnegotiate_steps_total",
				Help: "Total negotiation steps by role and status",
			},
			[]string{"role", "status"},
		),
		Handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gssnegotiate_handshakes_total",
				Help: "Total finished negotiations by role and result",
			},
			[]string{"role", "result"},
		),
		ActiveStates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gssnegotiate_active_states",
				Help: "Current number of negotiation states that have not been cleaned",
			},
			[]string{"role"},
		),
		MessageOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gssnegotiate_message_ops_total",
				Help: "Total message protection operations by operation and result",
			},
			[]string{"op", "result"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gssnegotiate_step_duration_seconds",
				Help:    "Negotiation step duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role"},
		),
	}

	registerer.MustRegister(
		m.Steps,
		m.Handshakes,
		m.ActiveStates,
		m.MessageOps,
		m.StepDuration,
	)

	return m
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordStep records a Step call, and the end of the handshake when status is terminal.
func (m *Metrics) RecordStep(role string, status Status, duration time.Duration) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(role, status.String()).Inc()
	m.StepDuration.WithLabelValues(role).Observe(duration.Seconds())

	if status != StatusContinue {
		m.Handshakes.WithLabelValues(role, result(status == StatusComplete)).Inc()
	}
}

// stepRejected counts a Step refused before it reached the provider.  The handshake is
// still open, so it is not counted as finished.
func (m *Metrics) stepRejected(role string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(role, StatusError.String()).Inc()
}

// RecordMessageOp records a Wrap or Unwrap call.
func (m *Metrics) RecordMessageOp(op string, success bool) {
	if m == nil {
		return
	}
	m.MessageOps.WithLabelValues(op, result(success)).Inc()
}

func (m *Metrics) stateOpened(role string) {
	if m == nil {
		return
	}
	m.ActiveStates.WithLabelValues(role).Inc()
}

func (m *Metrics) stateClosed(role string) {
	if m == nil {
		return
	}
	m.ActiveStates.WithLabelValues(role).Dec()
}
