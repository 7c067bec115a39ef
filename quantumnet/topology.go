package quantumnet

import "fmt"

// Canonical topology names accepted by Network.SetReadyTopology.
const (
	TopologyGrid = "Grid"
	TopologyLine = "Line"
	TopologyRing = "Ring"
)

// MaxTopologyHosts bounds the number of hosts a canonical topology may have.
const MaxTopologyHosts = 1 << 20

// An edge is an undirected host pair, normalized so that a < b.
type edge struct {
	a, b HostID
}

func newEdge(a, b HostID) edge {
	if b < a {
		a, b = b, a
	}
	return edge{a: a, b: b}
}

// readyTopology returns the node count and edges of a canonical topology.
// Nodes are numbered densely from 0.
func readyTopology(name string, args []int) (int, []edge, error) {
	arity := map[string]int{TopologyGrid: 2, TopologyLine: 1, TopologyRing: 1}
	want, ok := arity[name]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %q (want one of %s, %s, %s)",
			ErrUnknownTopology, name, TopologyGrid, TopologyLine, TopologyRing)
	}
	if len(args) != want {
		return 0, nil, fmt.Errorf("%w: %s takes %d sizing argument(s), got %d",
			ErrInvalidTopologyArgs, name, want, len(args))
	}
	switch name {
	case TopologyGrid:
		return grid(args[0], args[1])
	case TopologyLine:
		return line(args[0])
	default:
		return ring(args[0])
	}
}

// grid numbers the node at (r, c) as r*cols + c and joins it to its right and
// lower neighbours.
func grid(rows, cols int) (int, []edge, error) {
	if rows < 1 || cols < 1 {
		return 0, nil, fmt.Errorf("%w: %s needs positive dimensions, got %dx%d",
			ErrInvalidTopologyArgs, TopologyGrid, rows, cols)
	}
	// Divide rather than multiply so the check cannot overflow.
	if rows > MaxTopologyHosts/cols {
		return 0, nil, fmt.Errorf("%w: %s %dx%d exceeds %d hosts",
			ErrInvalidTopologyArgs, TopologyGrid, rows, cols, MaxTopologyHosts)
	}
	var edges []edge
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := HostID(r*cols + c)
			if c+1 < cols {
				edges = append(edges, newEdge(id, id+1))
			}
			if r+1 < rows {
				edges = append(edges, newEdge(id, id+HostID(cols)))
			}
		}
	}
	return rows * cols, edges, nil
}

func line(n int) (int, []edge, error) {
	if n < 1 {
		return 0, nil, fmt.Errorf("%w: %s needs at least 1 node, got %d", ErrInvalidTopologyArgs, TopologyLine, n)
	}
	if n > MaxTopologyHosts {
		return 0, nil, fmt.Errorf("%w: %s of %d exceeds %d hosts", ErrInvalidTopologyArgs, TopologyLine, n, MaxTopologyHosts)
	}
	var edges []edge
	for i := 0; i+1 < n; i++ {
		edges = append(edges, newEdge(HostID(i), HostID(i+1)))
	}
	return n, edges, nil
}

// ring needs three nodes; fewer would collapse into a self loop or a single
// edge.
func ring(n int) (int, []edge, error) {
	if n < 3 {
		return 0, nil, fmt.Errorf("%w: %s needs at least 3 nodes, got %d", ErrInvalidTopologyArgs, TopologyRing, n)
	}
	_, edges, err := line(n)
	if err != nil {
		return 0, nil, err
	}
	return n, append(edges, newEdge(0, HostID(n-1))), nil
}
