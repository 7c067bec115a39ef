package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alan-christopher/quantumnet/quantumnet"
)

// runQnet executes the root command with args and returns its stdout.
func runQnet(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("QNET_SEED", "")
	t.Setenv("QNET_TRIALS", "")
	t.Setenv("QNET_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTopologyCmd(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		eHosts int
		eEdges int
	}{
		{"default line", nil, 5, 4},
		{"grid", []string{"--topology", "Grid", "--args", "2,3"}, 6, 7},
		{"ring", []string{"--topology", "Ring", "--args", "4"}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runQnet(t, append([]string{"topology", "--json"}, tt.args...)...)
			if err != nil {
				t.Fatalf("topology: %v", err)
			}
			var v networkView
			if err := json.Unmarshal([]byte(out), &v); err != nil {
				t.Fatalf("decoding %q: %v", out, err)
			}
			if len(v.Hosts) != tt.eHosts {
				t.Errorf("len(Hosts) == %d, want %d", len(v.Hosts), tt.eHosts)
			}
			if len(v.Edges) != tt.eEdges {
				t.Errorf("len(Edges) == %d, want %d", len(v.Edges), tt.eEdges)
			}
		})
	}

	if _, err := runQnet(t, "topology", "--topology", "Ring", "--args", "2"); !errors.Is(err, quantumnet.ErrInvalidTopologyArgs) {
		t.Errorf("two host ring: got %v, want %v", err, quantumnet.ErrInvalidTopologyArgs)
	}
}

func TestTopologyCmdText(t *testing.T) {
	out, err := runQnet(t, "topology", "--topology", "Line", "--args", "3")
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if !strings.HasPrefix(out, "Topology: Line (3 hosts, 2 edges)") {
		t.Errorf("unexpected header in %q", out)
	}
	if !strings.Contains(out, "host 1: 0/10 qubits, connections [0 2]") {
		t.Errorf("missing middle host in %q", out)
	}
}

func TestEntangleCmd(t *testing.T) {
	tests := []struct {
		variant    string
		eSuccesses int
		eAttempts  int
	}{
		{quantumnet.VariantECHP, 50, 50},
		{quantumnet.VariantReplay, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			out, err := runQnet(t, "entangle", "--json", "--variant", tt.variant, "--trials", "50")
			if err != nil {
				t.Fatalf("entangle: %v", err)
			}
			var sum entangleSummary
			if err := json.Unmarshal([]byte(out), &sum); err != nil {
				t.Fatalf("decoding %q: %v", out, err)
			}
			if sum.Successes != tt.eSuccesses {
				t.Errorf("Successes == %d, want %d", sum.Successes, tt.eSuccesses)
			}
			if sum.Attempts != tt.eAttempts {
				t.Errorf("Attempts == %d, want %d", sum.Attempts, tt.eAttempts)
			}
			if sum.RecordedEPRs != tt.eSuccesses {
				t.Errorf("RecordedEPRs == %d, want %d", sum.RecordedEPRs, tt.eSuccesses)
			}
			if sum.MeanFidelity != 1 {
				t.Errorf("MeanFidelity == %v, want 1", sum.MeanFidelity)
			}
		})
	}
}

func TestEntangleCmdErrors(t *testing.T) {
	if _, err := runQnet(t, "entangle", "--alice", "0", "--bob", "2"); !errors.Is(err, quantumnet.ErrNotAdjacent) {
		t.Errorf("non-adjacent hosts: got %v, want %v", err, quantumnet.ErrNotAdjacent)
	}
	if _, err := runQnet(t, "entangle", "--bob", "7"); !errors.Is(err, quantumnet.ErrHostNotFound) {
		t.Errorf("missing host: got %v, want %v", err, quantumnet.ErrHostNotFound)
	}
	if _, err := runQnet(t, "entangle", "--variant", "teleport"); err == nil {
		t.Errorf("unknown variant did not fail")
	}
}

func TestSnapshotCmds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.snap")
	out, err := runQnet(t, "snapshot", "write", path, "--topology", "Grid", "--args", "2,2", "--rounds", "2")
	if err != nil {
		t.Fatalf("snapshot write: %v", err)
	}
	if !strings.Contains(out, "4 hosts") {
		t.Errorf("unexpected write output %q", out)
	}

	out, err = runQnet(t, "snapshot", "read", path, "--json")
	if err != nil {
		t.Fatalf("snapshot read: %v", err)
	}
	var v networkView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if v.Topology != quantumnet.TopologyGrid || len(v.Hosts) != 4 || len(v.Edges) != 4 {
		t.Errorf("restored %+v, want a 2x2 grid", v)
	}
	stored := 0
	for _, h := range v.Hosts {
		stored += h.Stored
	}
	if stored == 0 {
		t.Errorf("restored network holds no qubits")
	}

	if _, err := runQnet(t, "snapshot", "read", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("reading a missing snapshot did not fail")
	}
}
