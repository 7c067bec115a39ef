package quantumnet

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alan-christopher/quantumnet/quantumnet/logging"
	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
	"github.com/alan-christopher/quantumnet/quantumnet/qubit"
)

const (
	// SuccessThreshold is the pair fidelity an entanglement attempt must
	// exceed to be heralded as successful.
	SuccessThreshold = 0.9

	// ReplayCreationProbability is the fixed channel success probability
	// folded into on-demand success estimates.
	ReplayCreationProbability = 0.9

	// DefaultMaxReplayAttempts bounds the retries of ECHPOnReplay.
	DefaultMaxReplayAttempts = 3
)

// Protocol variant labels, as reported to metrics.
const (
	VariantECHP     = "echp"
	VariantOnDemand = "on_demand"
	VariantReplay   = "replay"
)

// A PhysicalLayerOpts packages together the arguments used to construct a
// PhysicalLayer. The zero value is usable.
type PhysicalLayerOpts struct {
	// ID identifies the layer in logs.
	ID int

	// Logger receives protocol outcomes. Defaults to a no-op logger.
	Logger *zap.Logger

	// Source drives every random draw the layer makes. Defaults to a PCG
	// seeded with zeros, so runs are reproducible unless a source is given.
	Source rand.Source

	// Metrics, if non-nil, records attempts and measured fidelities.
	Metrics *metrics.Collector

	// MaxReplayAttempts bounds ECHPOnReplay. Defaults to
	// DefaultMaxReplayAttempts.
	MaxReplayAttempts int
}

// A PhysicalLayer creates entanglement between hosts and heralds whether it
// succeeded.
type PhysicalLayer struct {
	id                int
	logger            *zap.Logger
	src               rand.Source
	metrics           *metrics.Collector
	maxReplayAttempts int

	// qubits records every qubit that took part in an entanglement.
	qubits []*qubit.Qubit
}

// A Heralding is the outcome of one entanglement attempt.
type Heralding struct {
	Success bool
	// Pair is the entangled pair. Nil if the attempt failed.
	Pair *qubit.EPR
	// Fidelity is the measured pair fidelity, or the success probability for
	// on-demand attempts.
	Fidelity float64
}

// A ReplayOutcome summarizes an ECHPOnReplay run.
type ReplayOutcome struct {
	Heralding
	Attempts int
}

// NewPhysicalLayer returns a PhysicalLayer configured by opts.
func NewPhysicalLayer(opts PhysicalLayerOpts) *PhysicalLayer {
	src := opts.Source
	if src == nil {
		src = rand.NewPCG(0, 0)
	}
	maxReplay := opts.MaxReplayAttempts
	if maxReplay <= 0 {
		maxReplay = DefaultMaxReplayAttempts
	}
	return &PhysicalLayer{
		id:                opts.ID,
		logger:            logging.OrNop(opts.Logger).With(zap.Int("physical_layer", opts.ID)),
		src:               src,
		metrics:           opts.Metrics,
		maxReplayAttempts: maxReplay,
	}
}

// ID returns the layer's identifier.
func (p *PhysicalLayer) ID() int { return p.id }

// Qubits returns every qubit that has been entangled by this layer, in order.
func (p *PhysicalLayer) Qubits() []*qubit.Qubit {
	return append([]*qubit.Qubit(nil), p.qubits...)
}

func (p *PhysicalLayer) String() string {
	return fmt.Sprintf("Physical Layer %d", p.id)
}

// Entangle pairs a and b into an EPR pair.
func (p *PhysicalLayer) Entangle(a, b *qubit.Qubit) *qubit.EPR {
	p.qubits = append(p.qubits, a, b)
	return qubit.Pair(a, b)
}

// CreateEPRPair entangles a and b.
// TODO: attach the pair to the channel resource of the edge it was made on
// once channels are modelled; Network.Entangle records it for now.
func (p *PhysicalLayer) CreateEPRPair(a, b *qubit.Qubit) *qubit.EPR {
	return p.Entangle(a, b)
}

// FidelityMeasurement returns the fidelity of the pair (a, b).
func (p *PhysicalLayer) FidelityMeasurement(a, b *qubit.Qubit) float64 {
	f := qubit.PairFidelity(a, b)
	p.logger.Info("measured pair fidelity",
		zap.Int("qubit_a", a.ID()), zap.Int("qubit_b", b.ID()), zap.Float64("fidelity", f))
	return f
}

// FidelityMeasurementOne returns the fidelity of a single qubit.
func (p *PhysicalLayer) FidelityMeasurementOne(q *qubit.Qubit) float64 {
	f := q.Fidelity()
	p.logger.Info("measured qubit fidelity", zap.Int("qubit", q.ID()), zap.Float64("fidelity", f))
	return f
}

// ECHP runs the entanglement creation heralding protocol between alice and
// bob and reports whether it succeeded. See Herald.
func (p *PhysicalLayer) ECHP(alice, bob *Host) (bool, error) {
	h, err := p.Herald(alice, bob)
	return h.Success, err
}

// Herald takes the last qubit of each host, entangles them and heralds
// success iff the pair fidelity exceeds SuccessThreshold. Both qubits are
// consumed whatever the outcome; failures are not retried.
func (p *PhysicalLayer) Herald(alice, bob *Host) (Heralding, error) {
	a, b, err := takePair(alice, bob)
	if err != nil {
		return Heralding{}, err
	}
	return p.herald(VariantECHP, a, b), nil
}

func (p *PhysicalLayer) herald(variant string, a, b *qubit.Qubit) Heralding {
	epr := p.CreateEPRPair(a, b)
	f := p.FidelityMeasurement(a, b)
	ok := f > SuccessThreshold
	p.metrics.ObserveAttempt(variant, ok, f)
	if !ok {
		p.logger.Info("entanglement creation heralding protocol failed",
			zap.String("variant", variant), zap.Float64("fidelity", f))
		return Heralding{Fidelity: f}
	}
	p.logger.Info("entanglement creation heralding protocol succeeded",
		zap.String("variant", variant), zap.Float64("fidelity", f))
	return Heralding{Success: true, Pair: epr, Fidelity: f}
}

// ECHPOnDemand returns the probability that an on-demand entanglement attempt
// with the last qubit of each host succeeds:
// ReplayCreationProbability * F(a) * F(b). It is a forecast: both memories are
// left untouched. Sampling the outcome and consuming the qubits is left to the
// caller; see HeraldOnDemand.
func (p *PhysicalLayer) ECHPOnDemand(alice, bob *Host) (float64, error) {
	a, b, err := peekPair(alice, bob)
	if err != nil {
		return 0, err
	}
	return p.onDemandProbability(a, b), nil
}

func (p *PhysicalLayer) onDemandProbability(a, b *qubit.Qubit) float64 {
	fa := p.FidelityMeasurementOne(a)
	fb := p.FidelityMeasurementOne(b)
	prob := ReplayCreationProbability * fa * fb
	p.logger.Info("on-demand success probability", zap.Float64("probability", prob))
	return prob
}

// HeraldOnDemand computes the on-demand success probability for the last
// qubits of alice and bob, then draws the outcome from the layer's source.
func (p *PhysicalLayer) HeraldOnDemand(alice, bob *Host) (Heralding, error) {
	a, b, err := takePair(alice, bob)
	if err != nil {
		return Heralding{}, err
	}
	prob := p.onDemandProbability(a, b)
	ok := p.Bernoulli(prob)
	p.metrics.ObserveAttempt(VariantOnDemand, ok, prob)
	if !ok {
		p.logger.Info("on-demand entanglement failed", zap.Float64("probability", prob))
		return Heralding{Fidelity: prob}, nil
	}
	return Heralding{Success: true, Pair: p.CreateEPRPair(a, b), Fidelity: prob}, nil
}

// ECHPOnReplay re-attempts entanglement after fidelity has decayed, reusing
// qubits already held in memory rather than creating new ones. Each attempt
// takes the next stored qubit from each host and applies the same threshold as
// ECHP. It stops at the first success, after MaxReplayAttempts attempts, or
// when either memory runs dry. ErrEmptyMemory is only returned if no attempt
// could be made at all.
//
// This is a provisional policy: it neither backs off between attempts nor
// regenerates qubits with the hosts' replay creation probability.
func (p *PhysicalLayer) ECHPOnReplay(alice, bob *Host) (ReplayOutcome, error) {
	var out ReplayOutcome
	for out.Attempts < p.maxReplayAttempts {
		a, b, err := takePair(alice, bob)
		if err != nil {
			if out.Attempts == 0 {
				return out, err
			}
			break
		}
		out.Attempts++
		out.Heralding = p.herald(VariantReplay, a, b)
		if out.Success {
			break
		}
	}
	p.logger.Debug("replay finished",
		zap.Int("attempts", out.Attempts), zap.Bool("success", out.Success))
	return out, nil
}

// Bernoulli draws true with probability prob from the layer's source.
func (p *PhysicalLayer) Bernoulli(prob float64) bool {
	return bernoulli(p.src, prob)
}

func bernoulli(src rand.Source, prob float64) bool {
	switch {
	case prob <= 0:
		return false
	case prob >= 1:
		return true
	}
	return distuv.Bernoulli{P: prob, Src: src}.Rand() == 1
}

// peekPair returns the qubits takePair would remove, without removing them.
func peekPair(alice, bob *Host) (a, b *qubit.Qubit, err error) {
	if alice == bob {
		if alice.Len() < 2 {
			return nil, nil, fmt.Errorf("host %d pairing with itself: %w", alice.id, ErrEmptyMemory)
		}
		return alice.memory[alice.Len()-1], alice.memory[alice.Len()-2], nil
	}
	if a, err = alice.PeekLastQubit(); err != nil {
		return nil, nil, err
	}
	if b, err = bob.PeekLastQubit(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// takePair removes the last qubit from each host. Neither host is modified
// unless both hold a qubit.
func takePair(alice, bob *Host) (a, b *qubit.Qubit, err error) {
	if _, _, err := peekPair(alice, bob); err != nil {
		return nil, nil, err
	}
	if a, err = alice.GetLastQubit(); err != nil {
		return nil, nil, err
	}
	if b, err = bob.GetLastQubit(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
