package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alan-christopher/quantumnet/quantumnet"
)

type hostView struct {
	ID          quantumnet.HostID   `json:"id"`
	Connections []quantumnet.HostID `json:"connections"`
	Stored      int                 `json:"stored"`
	MemorySize  int                 `json:"memory_size"`
}

type networkView struct {
	Topology string                 `json:"topology"`
	Hosts    []hostView             `json:"hosts"`
	Edges    [][2]quantumnet.HostID `json:"edges"`
}

func viewOf(n *quantumnet.Network) networkView {
	v := networkView{Topology: n.Topology(), Edges: n.Edges()}
	for _, h := range n.Hosts() {
		v.Hosts = append(v.Hosts, hostView{
			ID:          h.ID(),
			Connections: h.Connections(),
			Stored:      h.Len(),
			MemorySize:  h.MemorySize(),
		})
	}
	return v
}

func printNetwork(w io.Writer, n *quantumnet.Network, jsonOut bool) error {
	v := viewOf(n)
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(w, "Topology: %s (%d hosts, %d edges)\n", v.Topology, len(v.Hosts), len(v.Edges))
	for _, h := range v.Hosts {
		fmt.Fprintf(w, "  host %d: %d/%d qubits, connections %v\n", h.ID, h.Stored, h.MemorySize, h.Connections)
	}
	return nil
}

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the hosts and edges of the scenario network",
		Long: `Build the scenario network and print each host with its connections.

Examples:
  qnet topology                             # five host line
  qnet topology --topology Grid --args 3,4  # 3x4 grid
  qnet topology --config ring.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := loadScenario(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(s)
			defer logger.Sync()

			n, err := s.BuildNetwork(logger, nil)
			if err != nil {
				return fmt.Errorf("failed to build network: %w", err)
			}
			return printNetwork(cmd.OutOrStdout(), n, jsonOut)
		},
	}
}
