// Package qubit provides the scalar-fidelity model of simulated qubits and the
// EPR pairs built from them.
package qubit

import (
	"errors"
	"fmt"
)

// DefaultFidelity is the fidelity of a freshly prepared qubit.
const DefaultFidelity = 1.0

// ErrInvalidFidelity is returned when a fidelity or fidelity loss lies outside
// [0, 1].
var ErrInvalidFidelity = errors.New("fidelity must lie in [0, 1]")

// A Qubit is a simulated quantum bit. Its state is reduced to a single fidelity
// scalar describing how close it is to the ideal state.
type Qubit struct {
	id       int
	fidelity float64

	// owner is the id of the host holding this qubit in memory. It is a plain
	// id rather than a pointer so that a qubit never keeps a host alive.
	owner    int64
	hasOwner bool
}

// New returns a qubit with the given id and initial fidelity, or
// ErrInvalidFidelity if fidelity is outside [0, 1].
func New(id int, fidelity float64) (*Qubit, error) {
	if err := checkUnit(fidelity); err != nil {
		return nil, fmt.Errorf("qubit %d: %w", id, err)
	}
	return &Qubit{id: id, fidelity: fidelity}, nil
}

// ID returns the qubit's identifier.
func (q *Qubit) ID() int { return q.id }

// Fidelity returns the current fidelity of q.
func (q *Qubit) Fidelity() float64 { return q.fidelity }

// Owner returns the id of the host whose memory currently holds q.
func (q *Qubit) Owner() (int64, bool) { return q.owner, q.hasOwner }

// Bind records host as q's owner.
func (q *Qubit) Bind(host int64) {
	q.owner = host
	q.hasOwner = true
}

// Release clears q's owner, e.g. once it has been consumed by a protocol
// attempt.
func (q *Qubit) Release() {
	q.owner = 0
	q.hasOwner = false
}

// Decay degrades q's fidelity by the fraction loss, so that the new fidelity is
// Fidelity() * (1 - loss).
func (q *Qubit) Decay(loss float64) error {
	if err := checkUnit(loss); err != nil {
		return fmt.Errorf("decaying qubit %d: %w", q.id, err)
	}
	q.fidelity = clamp(q.fidelity * (1 - loss))
	return nil
}

func (q *Qubit) String() string {
	return fmt.Sprintf("Qubit %d", q.id)
}

// PairFidelity returns the fidelity of an EPR pair built from a and b. Each half
// of the pair degrades independently, so the pair fidelity is the product of
// the two.
func PairFidelity(a, b *Qubit) float64 {
	return clamp(a.fidelity * b.fidelity)
}

// An EPR is an entangled pair of qubits. It does not own its qubits; it only
// aggregates them for the duration of a protocol attempt.
type EPR struct {
	A, B *Qubit
}

// Pair returns the EPR aggregate of a and b. Neither qubit is modified.
func Pair(a, b *Qubit) *EPR {
	return &EPR{A: a, B: b}
}

// Fidelity returns the fidelity of the pair, derived from its two qubits.
func (e *EPR) Fidelity() float64 {
	return PairFidelity(e.A, e.B)
}

func (e *EPR) String() string {
	return fmt.Sprintf("EPR(%d, %d)", e.A.id, e.B.id)
}

func checkUnit(v float64) error {
	// Written as a negated range check so that NaN is rejected too.
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidFidelity, v)
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
