// Package config loads quantum network simulation scenarios from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Scenario describes one simulation: the topology to build, how its hosts are
// configured, and how the protocol runs are driven.
type Scenario struct {
	// Topology selects one of the canonical topologies.
	Topology TopologyConfig `json:"topology" yaml:"topology"`

	// Host configures every host of the topology.
	Host HostConfig `json:"host" yaml:"host"`

	// Fidelity is the range initial qubit fidelities are drawn from.
	Fidelity FidelityRange `json:"fidelity" yaml:"fidelity"`

	// Seed seeds the simulation's random source.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Trials is the number of protocol attempts per run.
	Trials int `json:"trials" yaml:"trials"`

	// MaxReplayAttempts bounds replay retries. Zero selects the library default.
	MaxReplayAttempts int `json:"max_replay_attempts,omitempty" yaml:"max_replay_attempts,omitempty"`

	// Logging configures the logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// TopologyConfig names a canonical topology and its sizing arguments.
type TopologyConfig struct {
	// Name is one of "Grid", "Line" or "Ring".
	Name string `json:"name" yaml:"name"`
	// Args holds (rows, cols) for Grid and (n) for Line and Ring.
	Args []int `json:"args" yaml:"args"`
}

// HostConfig mirrors the host constructor settings.
type HostConfig struct {
	MemorySize          int     `json:"memory_size" yaml:"memory_size"`
	MaxQubitsCreate     int     `json:"max_qubits_create" yaml:"max_qubits_create"`
	ProbabilityOnDemand float64 `json:"probability_on_demand" yaml:"probability_on_demand"`
	ProbabilityReplay   float64 `json:"probability_replay" yaml:"probability_replay"`
}

// FidelityRange is a closed interval within [0, 1].
type FidelityRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`
	// Format is "console" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Scenario with sensible defaults: a five host line of
// default hosts holding perfect qubits.
func Default() *Scenario {
	return &Scenario{
		Topology: TopologyConfig{Name: "Line", Args: []int{5}},
		Host: HostConfig{
			MemorySize:          10,
			MaxQubitsCreate:     10,
			ProbabilityOnDemand: 0.5,
			ProbabilityReplay:   0.5,
		},
		Fidelity: FidelityRange{Min: 1, Max: 1},
		Seed:     1,
		Trials:   1000,
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads a Scenario from the YAML file at path. Fields absent from the
// file keep their defaults.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overrides the seed and trial count from QNET_SEED and QNET_TRIALS
// when set.
func (s *Scenario) ApplyEnv() error {
	if v := os.Getenv("QNET_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("QNET_SEED: %w", err)
		}
		s.Seed = seed
	}
	if v := os.Getenv("QNET_TRIALS"); v != "" {
		trials, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QNET_TRIALS: %w", err)
		}
		s.Trials = trials
	}
	return nil
}

// Validate reports settings that no simulation could run with. Topology
// arity is left to the network, which knows the canonical shapes.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Topology.Name == "" {
		errs = append(errs, errors.New("topology.name is required"))
	}
	if s.Host.MemorySize < 0 {
		errs = append(errs, fmt.Errorf("host.memory_size must be non-negative, got %d", s.Host.MemorySize))
	}
	if s.Host.MaxQubitsCreate < 0 {
		errs = append(errs, fmt.Errorf("host.max_qubits_create must be non-negative, got %d", s.Host.MaxQubitsCreate))
	}
	for name, p := range map[string]float64{
		"host.probability_on_demand": s.Host.ProbabilityOnDemand,
		"host.probability_replay":    s.Host.ProbabilityReplay,
		"fidelity.min":               s.Fidelity.Min,
		"fidelity.max":               s.Fidelity.Max,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must lie in [0, 1], got %v", name, p))
		}
	}
	if s.Fidelity.Min > s.Fidelity.Max {
		errs = append(errs, fmt.Errorf("fidelity.min %v exceeds fidelity.max %v", s.Fidelity.Min, s.Fidelity.Max))
	}
	if s.Trials < 0 {
		errs = append(errs, fmt.Errorf("trials must be non-negative, got %d", s.Trials))
	}
	return errors.Join(errs...)
}
