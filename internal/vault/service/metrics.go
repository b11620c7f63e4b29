package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// Metrics are the ledger's prometheus collectors.  A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	pending       prometheus.Gauge
	chainVerified prometheus.Gauge
	chainLength   prometheus.Gauge
	relayed       *prometheus.CounterVec
	relayErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datavault",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datavault",
			Subsystem: "ledger",
			Name:      "pending_requests",
			Help:      "Access requests not yet processed.",
		}),
		chainVerified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datavault",
			Subsystem: "chain",
			Name:      "verified",
			Help:      "1 if the last chain verification passed, 0 otherwise.",
		}),
		chainLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datavault",
			Subsystem: "chain",
			Name:      "verified_events",
			Help:      "Events covered by the last chain verification.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datavault",
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Events forwarded to an external publisher.",
		}, []string{"publisher"}),
		relayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datavault",
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Failed publish attempts.",
		}, []string{"publisher"}),
	}

	if reg != nil {
		reg.MustRegister(m.operations, m.pending, m.chainVerified, m.chainLength, m.relayed, m.relayErrors)
	}
	return m
}

func (m *Metrics) observeOp(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) setPending(n int64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) addPending(delta float64) {
	if m == nil {
		return
	}
	m.pending.Add(delta)
}

func (m *Metrics) setChain(r types.ChainReport) {
	if m == nil {
		return
	}
	if r.Verified {
		m.chainVerified.Set(1)
	} else {
		m.chainVerified.Set(0)
	}
	m.chainLength.Set(float64(r.Count))
}

func (m *Metrics) relayPublished(publisher string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.relayed.WithLabelValues(publisher).Add(float64(n))
}

func (m *Metrics) relayFailed(publisher string) {
	if m == nil {
		return
	}
	m.relayErrors.WithLabelValues(publisher).Inc()
}
