// Package metrics bundles the Prometheus collectors exported by a quantum
// network simulation.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector holds the protocol and memory metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	Attempts     *prometheus.CounterVec
	PairFidelity *prometheus.HistogramVec
	StoredQubits prometheus.Gauge
}

// NewCollector registers the collectors against reg, defaulting to the global
// Prometheus registry when nil. Collectors that are already registered are
// reused, so several networks may share one registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attempts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qnet_echp_attempts_total",
		Help: "Entanglement creation heralding attempts, labeled by protocol variant and outcome.",
	}, []string{"variant", "outcome"}), "qnet_echp_attempts_total")
	if err != nil {
		return nil, err
	}

	fidelity, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qnet_epr_pair_fidelity",
		Help:    "Measured EPR pair fidelity (or on-demand success probability) per attempt.",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
	}, []string{"variant"}), "qnet_epr_pair_fidelity")
	if err != nil {
		return nil, err
	}

	stored, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qnet_stored_qubits",
		Help: "Qubits currently held in host memories.",
	}), "qnet_stored_qubits")
	if err != nil {
		return nil, err
	}

	return &Collector{
		Attempts:     attempts,
		PairFidelity: fidelity,
		StoredQubits: stored,
	}, nil
}

// ObserveAttempt records one protocol attempt of the given variant.
func (c *Collector) ObserveAttempt(variant string, success bool, fidelity float64) {
	if c == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	c.Attempts.WithLabelValues(variant, outcome).Inc()
	c.PairFidelity.WithLabelValues(variant).Observe(fidelity)
}

// QubitStored records a qubit entering a host memory.
func (c *Collector) QubitStored() {
	if c == nil {
		return
	}
	c.StoredQubits.Inc()
}

// QubitsReleased records n qubits leaving host memories.
func (c *Collector) QubitsReleased(n int) {
	if c == nil {
		return
	}
	c.StoredQubits.Sub(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
