package quantumnet

import (
	"fmt"
	"sort"

	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
	"github.com/alan-christopher/quantumnet/quantumnet/qubit"
)

// Defaults applied by NewHost.
var (
	DefaultMemorySize          = 10
	DefaultMaxQubitsCreate     = 10
	DefaultProbabilityOnDemand = 0.5
	DefaultProbabilityReplay   = 0.5
)

// A HostID identifies a host within a Network. Canonical topologies number
// their hosts densely from 0.
type HostID int64

// A Host is a network node owning a bounded qubit memory.
type Host struct {
	id          HostID
	connections map[HostID]struct{}

	memory          []*qubit.Qubit
	memorySize      int
	maxQubitsCreate int
	probOnDemand    float64
	probReplay      float64

	metrics *metrics.Collector
}

// A HostOption customizes a Host built by NewHost.
type HostOption func(*Host)

// WithMemorySize sets the qubit memory capacity. Defaults to
// DefaultMemorySize.
func WithMemorySize(n int) HostOption {
	return func(h *Host) { h.memorySize = n }
}

// WithMaxQubitsCreate sets how many qubits the host may create in one
// provisioning round. Defaults to DefaultMaxQubitsCreate.
func WithMaxQubitsCreate(n int) HostOption {
	return func(h *Host) { h.maxQubitsCreate = n }
}

// WithCreationProbabilities sets the probabilities that an on-demand or replay
// qubit creation succeeds. Both default to one half.
func WithCreationProbabilities(onDemand, replay float64) HostOption {
	return func(h *Host) {
		h.probOnDemand = onDemand
		h.probReplay = replay
	}
}

// WithConnections declares topology neighbours of the host.
func WithConnections(ids ...HostID) HostOption {
	return func(h *Host) {
		for _, id := range ids {
			h.connections[id] = struct{}{}
		}
	}
}

// NewHost returns a new Host, configured in accordance with opts, or an error
// if the options are nonsensical.
func NewHost(id HostID, opts ...HostOption) (*Host, error) {
	h := &Host{
		id:              id,
		connections:     make(map[HostID]struct{}),
		memorySize:      DefaultMemorySize,
		maxQubitsCreate: DefaultMaxQubitsCreate,
		probOnDemand:    DefaultProbabilityOnDemand,
		probReplay:      DefaultProbabilityReplay,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.memorySize < 0 {
		return nil, fmt.Errorf("host %d: negative memory size %d", id, h.memorySize)
	}
	if h.maxQubitsCreate < 0 {
		return nil, fmt.Errorf("host %d: negative max qubits to create %d", id, h.maxQubitsCreate)
	}
	if !isProbability(h.probOnDemand) || !isProbability(h.probReplay) {
		return nil, fmt.Errorf("host %d: creation probabilities must lie in [0, 1], got (%v, %v)",
			id, h.probOnDemand, h.probReplay)
	}
	if _, ok := h.connections[id]; ok {
		return nil, fmt.Errorf("host %d: cannot connect to itself", id)
	}
	return h, nil
}

// ID returns the host's identifier.
func (h *Host) ID() HostID { return h.id }

// MemorySize returns the capacity of the host's qubit memory.
func (h *Host) MemorySize() int { return h.memorySize }

// MaxQubitsCreate returns the most qubits the host creates per provisioning
// round.
func (h *Host) MaxQubitsCreate() int { return h.maxQubitsCreate }

// ProbabilityOnDemand returns the success probability of an on-demand qubit
// creation.
func (h *Host) ProbabilityOnDemand() float64 { return h.probOnDemand }

// ProbabilityReplay returns the success probability of a replay qubit
// creation.
func (h *Host) ProbabilityReplay() float64 { return h.probReplay }

// Len returns the number of qubits in memory.
func (h *Host) Len() int { return len(h.memory) }

// Memory returns the qubits in memory, oldest first. The slice is a copy.
func (h *Host) Memory() []*qubit.Qubit {
	return append([]*qubit.Qubit(nil), h.memory...)
}

// Connections returns the ids of the host's topology neighbours in ascending
// order.
func (h *Host) Connections() []HostID {
	ids := make([]HostID, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsConnected reports whether id is a topology neighbour of the host.
func (h *Host) IsConnected(id HostID) bool {
	_, ok := h.connections[id]
	return ok
}

// AddQubit stores q in memory, or returns ErrMemoryFull if the memory is at
// capacity.
func (h *Host) AddQubit(q *qubit.Qubit) error {
	if len(h.memory) >= h.memorySize {
		return fmt.Errorf("host %d storing qubit %d: %w (capacity %d)", h.id, q.ID(), ErrMemoryFull, h.memorySize)
	}
	q.Bind(int64(h.id))
	h.memory = append(h.memory, q)
	h.metrics.QubitStored()
	return nil
}

// GetLastQubit removes and returns the most recently stored qubit. Ownership
// passes to the caller, i.e. the qubit is consumed by whichever protocol
// attempt requested it. Returns ErrEmptyMemory if there is nothing stored.
func (h *Host) GetLastQubit() (*qubit.Qubit, error) {
	q, err := h.PeekLastQubit()
	if err != nil {
		return nil, err
	}
	h.memory[len(h.memory)-1] = nil
	h.memory = h.memory[:len(h.memory)-1]
	q.Release()
	h.metrics.QubitsReleased(1)
	return q, nil
}

// PeekLastQubit returns the most recently stored qubit without removing it.
func (h *Host) PeekLastQubit() (*qubit.Qubit, error) {
	if len(h.memory) == 0 {
		return nil, fmt.Errorf("host %d: %w", h.id, ErrEmptyMemory)
	}
	return h.memory[len(h.memory)-1], nil
}

// DecayMemory degrades every stored qubit by the fraction loss.
func (h *Host) DecayMemory(loss float64) error {
	for _, q := range h.memory {
		if err := q.Decay(loss); err != nil {
			return fmt.Errorf("host %d: %w", h.id, err)
		}
	}
	return nil
}

func (h *Host) String() string {
	return fmt.Sprintf("Host %d", h.id)
}

func (h *Host) connect(id HostID) {
	h.connections[id] = struct{}{}
}

// clear drops every stored qubit, e.g. when the host is torn down.
func (h *Host) clear() {
	for _, q := range h.memory {
		q.Release()
	}
	h.metrics.QubitsReleased(len(h.memory))
	h.memory = nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
