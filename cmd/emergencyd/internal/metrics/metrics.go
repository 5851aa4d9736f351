package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emergency"

// Request results.
const (
	ResultService = "service"
	ResultInvalid = "invalid"
	ResultExit    = "exit"
)

// Discovery probe outcomes.
const (
	ProbeReplied   = "replied"
	ProbeDropped   = "dropped"
	ProbeSendError = "send_error"
)

// Metrics holds the server's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	Requests            *prometheus.CounterVec
	DiscoveryProbes     *prometheus.CounterVec
	AuditErrors         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Client connections currently held by the multiplexer.",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted into the connection table.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Client connections closed immediately because the table was full.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatched commands by result.",
		}, []string{"result"}),
		DiscoveryProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_probes_total",
			Help:      "Discovery datagrams received by outcome.",
		}, []string{"outcome"}),
		AuditErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_errors_total",
			Help:      "Audit records dropped by sink.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ConnectionsActive,
			m.ConnectionsAccepted,
			m.ConnectionsRejected,
			m.Requests,
			m.DiscoveryProbes,
			m.AuditErrors,
		)
	}
	return m
}

func (m *Metrics) ConnAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) ConnRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejected.Inc()
}

func (m *Metrics) Request(result string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
}

func (m *Metrics) Probe(outcome string) {
	if m == nil {
		return
	}
	m.DiscoveryProbes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditError(sink string) {
	if m == nil {
		return
	}
	m.AuditErrors.WithLabelValues(sink).Inc()
}
