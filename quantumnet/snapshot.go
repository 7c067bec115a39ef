package quantumnet

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/alan-christopher/quantumnet/quantumnet/qubit"
)

// Snapshots are protocol buffers framed as: int32 length (little endian) |
// message. The messages are described by snapshotFile, equivalent to
//
//	syntax = "proto3";
//	package quantumnet;
//	message Network { string topology = 1; repeated Host hosts = 2; repeated Edge edges = 3; }
//	message Host {
//	  int64 id = 1; int64 memory_size = 2; int64 max_qubits_create = 3;
//	  double probability_on_demand = 4; double probability_replay = 5;
//	  repeated Qubit memory = 6;
//	}
//	message Qubit { int64 id = 1; double fidelity = 2; }
//	message Edge { int64 a = 1; int64 b = 2; }
var snapshotFile = mustSnapshotFile()

var (
	networkDesc = snapshotFile.Messages().ByName("Network")
	hostDesc    = snapshotFile.Messages().ByName("Host")
	qubitDesc   = snapshotFile.Messages().ByName("Qubit")
	edgeDesc    = snapshotFile.Messages().ByName("Edge")

	fieldNetworkTopology = networkDesc.Fields().ByName("topology")
	fieldNetworkHosts    = networkDesc.Fields().ByName("hosts")
	fieldNetworkEdges    = networkDesc.Fields().ByName("edges")

	fieldHostID           = hostDesc.Fields().ByName("id")
	fieldHostMemorySize   = hostDesc.Fields().ByName("memory_size")
	fieldHostMaxCreate    = hostDesc.Fields().ByName("max_qubits_create")
	fieldHostProbOnDemand = hostDesc.Fields().ByName("probability_on_demand")
	fieldHostProbReplay   = hostDesc.Fields().ByName("probability_replay")
	fieldHostMemory       = hostDesc.Fields().ByName("memory")

	fieldQubitID       = qubitDesc.Fields().ByName("id")
	fieldQubitFidelity = qubitDesc.Fields().ByName("fidelity")

	fieldEdgeA = edgeDesc.Fields().ByName("a")
	fieldEdgeB = edgeDesc.Fields().ByName("b")
)

// maxSnapshotBytes guards ReadSnapshot against absurd length prefixes.
const maxSnapshotBytes = 1 << 28

func mustSnapshotFile() protoreflect.FileDescriptor {
	const (
		int64T  = descriptorpb.FieldDescriptorProto_TYPE_INT64
		doubleT = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		stringT = descriptorpb.FieldDescriptorProto_TYPE_STRING
	)
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("quantumnet/snapshot.proto"),
		Package: proto.String("quantumnet"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Network",
				scalarField("topology", 1, stringT),
				messageField("hosts", 2, ".quantumnet.Host"),
				messageField("edges", 3, ".quantumnet.Edge"),
			),
			message("Host",
				scalarField("id", 1, int64T),
				scalarField("memory_size", 2, int64T),
				scalarField("max_qubits_create", 3, int64T),
				scalarField("probability_on_demand", 4, doubleT),
				scalarField("probability_replay", 5, doubleT),
				messageField("memory", 6, ".quantumnet.Qubit"),
			),
			message("Qubit",
				scalarField("id", 1, int64T),
				scalarField("fidelity", 2, doubleT),
			),
			message("Edge",
				scalarField("a", 1, int64T),
				scalarField("b", 2, int64T),
			),
		},
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("BUG: invalid snapshot descriptor: %v", err))
	}
	return fd
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func scalarField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// messageField declares a repeated field of message type typeName.
func messageField(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

// WriteSnapshot writes one framed snapshot of the topology, the hosts and
// their memories to w. Recorded EPR pairs and layer state are not included.
func (n *Network) WriteSnapshot(w io.Writer) error {
	msg, err := proto.Marshal(n.snapshotMessage())
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(msg))); err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return nil
}

// ReadSnapshot reads one framed snapshot from r and rebuilds the network it
// describes, using opts for the new network's logger, source and metrics.
// Snapshots that do not describe a consistent network are rejected with
// ErrInvalidSnapshot.
func ReadSnapshot(r io.Reader, opts NetworkOpts) (*Network, error) {
	var mLen int32
	if err := binary.Read(r, binary.LittleEndian, &mLen); err != nil {
		return nil, err
	}
	if mLen < 0 || mLen > maxSnapshotBytes {
		return nil, fmt.Errorf("%w: frame length %d", ErrInvalidSnapshot, mLen)
	}
	msg := make([]byte, mLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	m := dynamicpb.NewMessage(networkDesc)
	if err := proto.Unmarshal(msg, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	snap, err := snapshotFromMessage(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	n, err := snap.restore(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return n, nil
}

func (n *Network) snapshotMessage() *dynamicpb.Message {
	m := dynamicpb.NewMessage(networkDesc)
	m.Set(fieldNetworkTopology, protoreflect.ValueOfString(n.topology))
	hosts := m.Mutable(fieldNetworkHosts).List()
	for _, h := range n.Hosts() {
		hm := hosts.NewElement().Message()
		hm.Set(fieldHostID, protoreflect.ValueOfInt64(int64(h.id)))
		hm.Set(fieldHostMemorySize, protoreflect.ValueOfInt64(int64(h.memorySize)))
		hm.Set(fieldHostMaxCreate, protoreflect.ValueOfInt64(int64(h.maxQubitsCreate)))
		hm.Set(fieldHostProbOnDemand, protoreflect.ValueOfFloat64(h.probOnDemand))
		hm.Set(fieldHostProbReplay, protoreflect.ValueOfFloat64(h.probReplay))
		mem := hm.Mutable(fieldHostMemory).List()
		for _, q := range h.memory {
			qm := mem.NewElement().Message()
			qm.Set(fieldQubitID, protoreflect.ValueOfInt64(int64(q.ID())))
			qm.Set(fieldQubitFidelity, protoreflect.ValueOfFloat64(q.Fidelity()))
			mem.Append(protoreflect.ValueOfMessage(qm))
		}
		hosts.Append(protoreflect.ValueOfMessage(hm))
	}
	edges := m.Mutable(fieldNetworkEdges).List()
	for _, e := range n.edges() {
		em := edges.NewElement().Message()
		em.Set(fieldEdgeA, protoreflect.ValueOfInt64(int64(e.a)))
		em.Set(fieldEdgeB, protoreflect.ValueOfInt64(int64(e.b)))
		edges.Append(protoreflect.ValueOfMessage(em))
	}
	return m
}

type snapshot struct {
	topology string
	hosts    []hostSnapshot
	edges    []edge
}

type hostSnapshot struct {
	id                     HostID
	memorySize, maxCreate  int
	probOnDemand, probRepl float64
	memory                 []qubitSnapshot
}

type qubitSnapshot struct {
	id       int
	fidelity float64
}

func snapshotFromMessage(m protoreflect.Message) (*snapshot, error) {
	s := &snapshot{topology: m.Get(fieldNetworkTopology).String()}
	hosts := m.Get(fieldNetworkHosts).List()
	for i := 0; i < hosts.Len(); i++ {
		hm := hosts.Get(i).Message()
		hs := hostSnapshot{
			id:           HostID(hm.Get(fieldHostID).Int()),
			memorySize:   int(hm.Get(fieldHostMemorySize).Int()),
			maxCreate:    int(hm.Get(fieldHostMaxCreate).Int()),
			probOnDemand: hm.Get(fieldHostProbOnDemand).Float(),
			probRepl:     hm.Get(fieldHostProbReplay).Float(),
		}
		mem := hm.Get(fieldHostMemory).List()
		for j := 0; j < mem.Len(); j++ {
			qm := mem.Get(j).Message()
			q := qubitSnapshot{id: int(qm.Get(fieldQubitID).Int()), fidelity: qm.Get(fieldQubitFidelity).Float()}
			if !(q.fidelity >= 0 && q.fidelity <= 1) {
				return nil, fmt.Errorf("host %d qubit %d: %w", hs.id, q.id, qubit.ErrInvalidFidelity)
			}
			hs.memory = append(hs.memory, q)
		}
		s.hosts = append(s.hosts, hs)
	}
	edges := m.Get(fieldNetworkEdges).List()
	for i := 0; i < edges.Len(); i++ {
		em := edges.Get(i).Message()
		a, b := HostID(em.Get(fieldEdgeA).Int()), HostID(em.Get(fieldEdgeB).Int())
		if a == b {
			return nil, fmt.Errorf("self edge on host %d", a)
		}
		s.edges = append(s.edges, newEdge(a, b))
	}
	return s, nil
}

// restore rebuilds the network. Every edge must join two hosts present in the
// snapshot, and the result must pass CheckInvariants.
func (s *snapshot) restore(opts NetworkOpts) (*Network, error) {
	known := make(map[HostID]bool, len(s.hosts))
	for _, hs := range s.hosts {
		known[hs.id] = true
	}
	adj := make(map[HostID][]HostID)
	for _, e := range s.edges {
		if !known[e.a] || !known[e.b] {
			return nil, fmt.Errorf("edge (%d, %d) joins a host missing from the snapshot", e.a, e.b)
		}
		adj[e.a] = append(adj[e.a], e.b)
		adj[e.b] = append(adj[e.b], e.a)
	}
	n := NewNetwork(opts)
	for _, hs := range s.hosts {
		h, err := NewHost(hs.id,
			WithMemorySize(hs.memorySize),
			WithMaxQubitsCreate(hs.maxCreate),
			WithCreationProbabilities(hs.probOnDemand, hs.probRepl),
			WithConnections(adj[hs.id]...),
		)
		if err != nil {
			return nil, err
		}
		if err := n.AddHost(h); err != nil {
			return nil, err
		}
		for _, qs := range hs.memory {
			if err := n.AddQubit(hs.id, qs.id, qs.fidelity); err != nil {
				return nil, err
			}
		}
	}
	n.topology = s.topology
	if err := n.CheckInvariants(); err != nil {
		return nil, err
	}
	return n, nil
}
