package config

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alan-christopher/quantumnet/quantumnet"
	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
)

// Source returns the scenario's seeded random source.
func (s *Scenario) Source() rand.Source {
	return rand.NewPCG(s.Seed, 0)
}

// HostOptions returns the host settings as constructor options.
func (s *Scenario) HostOptions() []quantumnet.HostOption {
	return []quantumnet.HostOption{
		quantumnet.WithMemorySize(s.Host.MemorySize),
		quantumnet.WithMaxQubitsCreate(s.Host.MaxQubitsCreate),
		quantumnet.WithCreationProbabilities(s.Host.ProbabilityOnDemand, s.Host.ProbabilityReplay),
	}
}

// BuildNetwork validates the scenario and builds its topology. Hosts start
// with empty memories; see Fill.
func (s *Scenario) BuildNetwork(logger *zap.Logger, m *metrics.Collector) (*quantumnet.Network, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	n := quantumnet.NewNetwork(quantumnet.NetworkOpts{
		Logger:            logger,
		Source:            s.Source(),
		Metrics:           m,
		MaxReplayAttempts: s.MaxReplayAttempts,
		HostOptions:       s.HostOptions(),
	})
	if err := n.SetReadyTopology(s.Topology.Name, s.Topology.Args...); err != nil {
		return nil, err
	}
	return n, nil
}

// A Filler tops up host memories with qubits whose fidelities are drawn
// uniformly from a scenario's fidelity range.
type Filler struct {
	fidelity distuv.Uniform
}

// NewFiller returns a Filler drawing from src.
func (s *Scenario) NewFiller(src rand.Source) *Filler {
	return &Filler{fidelity: distuv.Uniform{Min: s.Fidelity.Min, Max: s.Fidelity.Max, Src: src}}
}

// Fill adds qubits to host id until its memory is full or it has received
// limit qubits. Ids come from the network's NextQubitID. It returns the number
// added.
func (f *Filler) Fill(n *quantumnet.Network, id quantumnet.HostID, limit int) (int, error) {
	h, err := n.Host(id)
	if err != nil {
		return 0, err
	}
	added := 0
	for added < limit && h.Len() < h.MemorySize() {
		if err := n.AddQubit(id, n.NextQubitID(), f.draw()); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (f *Filler) draw() float64 {
	if f.fidelity.Min == f.fidelity.Max {
		return f.fidelity.Min
	}
	return f.fidelity.Rand()
}
