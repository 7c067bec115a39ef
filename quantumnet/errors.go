package quantumnet

import "errors"

var (
	// ErrMemoryFull is returned when a qubit is stored in a host whose memory
	// is at capacity.
	ErrMemoryFull = errors.New("qubit memory full")
	// ErrEmptyMemory is returned when a qubit is requested from a host with no
	// qubits in memory.
	ErrEmptyMemory = errors.New("qubit memory empty")
	// ErrDuplicateHost is returned when a host id is registered twice.
	ErrDuplicateHost = errors.New("host already registered")
	// ErrHostNotFound is returned for lookups of unregistered host ids.
	ErrHostNotFound = errors.New("host not found")
	// ErrInvalidTopologyArgs is returned when a canonical topology receives the
	// wrong number of sizing arguments, or nonsensical ones.
	ErrInvalidTopologyArgs = errors.New("invalid topology arguments")
	// ErrUnknownTopology is returned for topology names outside Grid, Line and
	// Ring.
	ErrUnknownTopology = errors.New("unknown topology")
	// ErrNotAdjacent is returned when an EPR resource is requested on a pair
	// of hosts that share no topology edge.
	ErrNotAdjacent = errors.New("hosts are not adjacent")
	// ErrInvalidSnapshot is returned when snapshot bytes cannot be decoded.
	ErrInvalidSnapshot = errors.New("invalid network snapshot")
)
