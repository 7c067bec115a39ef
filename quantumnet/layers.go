package quantumnet

import "fmt"

// The layers above the physical layer are placeholders: they carry an
// identifier so that a Network can own one of each, and nothing else.

// A LinkLayer will distribute heralded EPR pairs across single hops.
type LinkLayer struct{ id int }

// A NetworkLayer will route entanglement across multiple hops.
type NetworkLayer struct{ id int }

// A TransportLayer will deliver teleported qubits end to end.
type TransportLayer struct{ id int }

// An ApplicationLayer will host quantum network applications.
type ApplicationLayer struct{ id int }

func (l *LinkLayer) String() string        { return fmt.Sprintf("Link Layer %d", l.id) }
func (l *NetworkLayer) String() string     { return fmt.Sprintf("Network Layer %d", l.id) }
func (l *TransportLayer) String() string   { return fmt.Sprintf("Transport Layer %d", l.id) }
func (l *ApplicationLayer) String() string { return fmt.Sprintf("Application Layer %d", l.id) }
