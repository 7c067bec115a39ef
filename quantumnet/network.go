// Package quantumnet simulates the physical layer of a quantum network: hosts
// holding bounded qubit memories, connected by a topology graph, between which
// the physical layer creates and heralds entanglement.
package quantumnet

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/alan-christopher/quantumnet/quantumnet/logging"
	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
	"github.com/alan-christopher/quantumnet/quantumnet/qubit"
)

// A NetworkOpts packages together the arguments used to construct a Network.
// The zero value is usable.
type NetworkOpts struct {
	// Logger is shared, suitably named, with every layer. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// Source drives every random draw of the network and its physical layer.
	// Defaults to a PCG seeded with zeros.
	Source rand.Source

	// Metrics, if non-nil, records protocol attempts and stored qubits.
	Metrics *metrics.Collector

	// MaxReplayAttempts is handed to the physical layer.
	MaxReplayAttempts int

	// HostOptions configure the hosts SetReadyTopology builds.
	HostOptions []HostOption
}

// A Network composes a topology graph, the hosts on its nodes, and one
// instance of each protocol layer. A Network is not safe for concurrent use;
// independent simulations should each build their own.
type Network struct {
	graph    *simple.UndirectedGraph
	hosts    map[HostID]*Host
	topology string

	physical    *PhysicalLayer
	link        *LinkLayer
	routing     *NetworkLayer
	transport   *TransportLayer
	application *ApplicationLayer

	logger   *zap.Logger
	src      rand.Source
	metrics  *metrics.Collector
	hostOpts []HostOption

	nextQubitID int
	eprs        map[edge][]*qubit.EPR
}

// NewNetwork returns an empty Network.
func NewNetwork(opts NetworkOpts) *Network {
	logger := logging.OrNop(opts.Logger)
	src := opts.Source
	if src == nil {
		src = rand.NewPCG(0, 0)
	}
	return &Network{
		graph:    simple.NewUndirectedGraph(),
		hosts:    make(map[HostID]*Host),
		physical: NewPhysicalLayer(PhysicalLayerOpts{
			Logger:            logger.Named("physical"),
			Source:            src,
			Metrics:           opts.Metrics,
			MaxReplayAttempts: opts.MaxReplayAttempts,
		}),
		link:        &LinkLayer{},
		routing:     &NetworkLayer{},
		transport:   &TransportLayer{},
		application: &ApplicationLayer{},
		logger:      logger.Named("network"),
		src:         src,
		metrics:     opts.Metrics,
		hostOpts:    opts.HostOptions,
		eprs:        make(map[edge][]*qubit.EPR),
	}
}

// Physical returns the network's physical layer.
func (n *Network) Physical() *PhysicalLayer { return n.physical }

// Link returns the network's link layer.
func (n *Network) Link() *LinkLayer { return n.link }

// Routing returns the network's network layer.
func (n *Network) Routing() *NetworkLayer { return n.routing }

// Transport returns the network's transport layer.
func (n *Network) Transport() *TransportLayer { return n.transport }

// Application returns the network's application layer.
func (n *Network) Application() *ApplicationLayer { return n.application }

// Topology returns the name of the canonical topology last built, if any.
func (n *Network) Topology() string { return n.topology }

// Graph returns a read-only view of the topology graph. Node ids are HostIDs.
func (n *Network) Graph() graph.Undirected { return n.graph }

// Hosts returns the registered hosts in ascending id order.
func (n *Network) Hosts() []*Host {
	hosts := make([]*Host, 0, len(n.hosts))
	for _, h := range n.hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].id < hosts[j].id })
	return hosts
}

// Nodes returns the ids of every graph node in ascending order.
func (n *Network) Nodes() []HostID {
	var ids []HostID
	for _, node := range graph.NodesOf(n.graph.Nodes()) {
		ids = append(ids, HostID(node.ID()))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns every graph edge as an ordered pair (low id first), sorted.
func (n *Network) Edges() [][2]HostID {
	var out [][2]HostID
	for _, e := range n.edges() {
		out = append(out, [2]HostID{e.a, e.b})
	}
	return out
}

func (n *Network) edges() []edge {
	var out []edge
	it := n.graph.Edges()
	for it.Next() {
		e := it.Edge()
		out = append(out, newEdge(HostID(e.From().ID()), HostID(e.To().ID())))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].a != out[j].a {
			return out[i].a < out[j].a
		}
		return out[i].b < out[j].b
	})
	return out
}

// Host returns the host registered under id, or ErrHostNotFound.
func (n *Network) Host(id HostID) (*Host, error) {
	h, ok := n.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrHostNotFound, id)
	}
	return h, nil
}

// AddHost registers h, adds its node to the graph, and adds an edge for every
// declared connection. Connections are kept symmetric: a registered neighbour
// learns about h, and h learns about edges other hosts already declared to
// it. Registering an id twice returns ErrDuplicateHost and leaves the first
// registration untouched.
func (n *Network) AddHost(h *Host) error {
	if _, ok := n.hosts[h.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateHost, h.id)
	}
	if h.IsConnected(h.id) {
		return fmt.Errorf("host %d: cannot connect to itself", h.id)
	}

	n.hosts[h.id] = h
	h.metrics = n.metrics
	for range h.memory {
		n.metrics.QubitStored()
	}
	n.logger.Debug("host added to registry", zap.Int64("host", int64(h.id)))

	if n.graph.Node(int64(h.id)) == nil {
		n.graph.AddNode(simple.Node(h.id))
		n.logger.Debug("node added to graph", zap.Int64("host", int64(h.id)))
	}

	for _, c := range h.Connections() {
		if !n.graph.HasEdgeBetween(int64(h.id), int64(c)) {
			n.graph.SetEdge(simple.Edge{F: simple.Node(h.id), T: simple.Node(c)})
			n.logger.Debug("edge added to graph",
				zap.Int64("host", int64(h.id)), zap.Int64("peer", int64(c)))
		}
		if peer, ok := n.hosts[c]; ok {
			peer.connect(h.id)
		}
	}
	nbrs := n.graph.From(int64(h.id))
	for nbrs.Next() {
		h.connect(HostID(nbrs.Node().ID()))
	}
	return nil
}

// SetReadyTopology replaces the graph and the host registry with one of the
// canonical topologies: Grid (rows, cols), Line (n) or Ring (n). Hosts are
// numbered 0..n-1 and built with the network's HostOptions.
func (n *Network) SetReadyTopology(name string, args ...int) error {
	count, edges, err := readyTopology(name, args)
	if err != nil {
		return err
	}

	adj := make(map[HostID][]HostID, count)
	for _, e := range edges {
		adj[e.a] = append(adj[e.a], e.b)
		adj[e.b] = append(adj[e.b], e.a)
	}
	hosts := make([]*Host, 0, count)
	for i := 0; i < count; i++ {
		id := HostID(i)
		opts := append(append([]HostOption(nil), n.hostOpts...), WithConnections(adj[id]...))
		h, err := NewHost(id, opts...)
		if err != nil {
			return err
		}
		hosts = append(hosts, h)
	}

	n.reset()
	n.topology = name
	for _, h := range hosts {
		if err := n.AddHost(h); err != nil {
			return err
		}
	}
	n.logger.Info("topology built",
		zap.String("topology", name), zap.Ints("args", args),
		zap.Int("hosts", count), zap.Int("edges", len(edges)))
	return nil
}

func (n *Network) reset() {
	for _, h := range n.hosts {
		h.clear()
	}
	n.graph = simple.NewUndirectedGraph()
	n.hosts = make(map[HostID]*Host)
	n.eprs = make(map[edge][]*qubit.EPR)
	n.topology = ""
}

// AddQubit creates a qubit with the given id and fidelity and stores it in the
// memory of host hostID.
func (n *Network) AddQubit(hostID HostID, qubitID int, fidelity float64) error {
	h, err := n.Host(hostID)
	if err != nil {
		return err
	}
	q, err := qubit.New(qubitID, fidelity)
	if err != nil {
		return err
	}
	if err := h.AddQubit(q); err != nil {
		return err
	}
	if qubitID >= n.nextQubitID {
		n.nextQubitID = qubitID + 1
	}
	n.logger.Debug("qubit created",
		zap.Int("qubit", qubitID), zap.Float64("fidelity", fidelity), zap.Int64("host", int64(hostID)))
	return nil
}

// NextQubitID returns an id above every qubit id this network has stored.
func (n *Network) NextQubitID() int { return n.nextQubitID }

// ProvisionOnDemand gives every host a round of on-demand qubit creation: up
// to MaxQubitsCreate attempts, bounded by free memory, each succeeding with the
// host's on-demand probability. New qubits have perfect fidelity and take
// ids from NextQubitID. It returns the number of qubits created.
func (n *Network) ProvisionOnDemand() (int, error) {
	created := 0
	for _, h := range n.Hosts() {
		attempts := h.maxQubitsCreate
		if free := h.memorySize - len(h.memory); free < attempts {
			attempts = free
		}
		for i := 0; i < attempts; i++ {
			if !bernoulli(n.src, h.probOnDemand) {
				continue
			}
			if err := n.AddQubit(h.id, n.nextQubitID, qubit.DefaultFidelity); err != nil {
				return created, err
			}
			created++
		}
	}
	n.logger.Debug("on-demand provisioning finished", zap.Int("created", created))
	return created, nil
}

// Entangle runs the heralding protocol between two adjacent hosts and, on
// success, records the pair as a resource of the edge joining them.
func (n *Network) Entangle(a, b HostID) (Heralding, error) {
	ha, hb, err := n.adjacentHosts(a, b)
	if err != nil {
		return Heralding{}, err
	}
	res, err := n.physical.Herald(ha, hb)
	if err != nil {
		return Heralding{}, err
	}
	if res.Success {
		n.eprs[newEdge(a, b)] = append(n.eprs[newEdge(a, b)], res.Pair)
	}
	return res, nil
}

// RecordEPR stores pair as a resource of the edge joining a and b.
func (n *Network) RecordEPR(a, b HostID, pair *qubit.EPR) error {
	if _, _, err := n.adjacentHosts(a, b); err != nil {
		return err
	}
	n.eprs[newEdge(a, b)] = append(n.eprs[newEdge(a, b)], pair)
	return nil
}

// EPRs returns the pairs recorded on the edge joining a and b.
func (n *Network) EPRs(a, b HostID) []*qubit.EPR {
	return append([]*qubit.EPR(nil), n.eprs[newEdge(a, b)]...)
}

func (n *Network) adjacentHosts(a, b HostID) (*Host, *Host, error) {
	ha, err := n.Host(a)
	if err != nil {
		return nil, nil, err
	}
	hb, err := n.Host(b)
	if err != nil {
		return nil, nil, err
	}
	if !n.graph.HasEdgeBetween(int64(a), int64(b)) {
		return nil, nil, fmt.Errorf("%w: %d and %d", ErrNotAdjacent, a, b)
	}
	return ha, hb, nil
}

// CheckInvariants verifies that every host has a graph node, that every edge
// joins two registered hosts listing each other as connections, and that every
// connection has an edge.
func (n *Network) CheckInvariants() error {
	for id, h := range n.hosts {
		if h.id != id {
			return fmt.Errorf("host %d registered under id %d", h.id, id)
		}
		if n.graph.Node(int64(id)) == nil {
			return fmt.Errorf("host %d has no graph node", id)
		}
		for _, c := range h.Connections() {
			if !n.graph.HasEdgeBetween(int64(id), int64(c)) {
				return fmt.Errorf("host %d lists connection %d with no edge", id, c)
			}
		}
	}
	for _, e := range n.edges() {
		ha, okA := n.hosts[e.a]
		hb, okB := n.hosts[e.b]
		if !okA || !okB {
			return fmt.Errorf("edge (%d, %d) joins an unregistered host", e.a, e.b)
		}
		if !ha.IsConnected(e.b) || !hb.IsConnected(e.a) {
			return fmt.Errorf("edge (%d, %d) missing from host connections", e.a, e.b)
		}
	}
	return nil
}
