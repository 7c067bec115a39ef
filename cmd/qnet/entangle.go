package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/alan-christopher/quantumnet/quantumnet"
	"github.com/alan-christopher/quantumnet/quantumnet/config"
	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
)

type entangleSummary struct {
	Variant      string  `json:"variant"`
	Alice        int64   `json:"alice"`
	Bob          int64   `json:"bob"`
	Trials       int     `json:"trials"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	MeanFidelity float64 `json:"mean_fidelity"`
	RecordedEPRs int     `json:"recorded_eprs"`
}

func newEntangleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entangle",
		Short: "Run entanglement attempts between two neighbouring hosts",
		Long: `Top up the memories of two neighbouring hosts with qubits drawn from the
scenario fidelity range and run a heralding protocol between them once per
trial. Successful pairs are recorded on the edge joining the hosts.

Examples:
  qnet entangle                                  # echp between hosts 0 and 1
  qnet entangle --variant replay --decay 0.05
  qnet entangle --alice 2 --bob 3 --trials 500 --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			alice, _ := cmd.Flags().GetInt64("alice")
			bob, _ := cmd.Flags().GetInt64("bob")
			variant, _ := cmd.Flags().GetString("variant")
			decay, _ := cmd.Flags().GetFloat64("decay")
			dumpMetrics, _ := cmd.Flags().GetBool("metrics")

			s, err := loadScenario(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("trials") {
				s.Trials, _ = cmd.Flags().GetInt("trials")
			}
			logger := newLogger(s)
			defer logger.Sync()

			reg := prometheus.NewRegistry()
			collector, err := metrics.NewCollector(reg)
			if err != nil {
				return err
			}
			n, err := s.BuildNetwork(logger, collector)
			if err != nil {
				return fmt.Errorf("failed to build network: %w", err)
			}
			sum, err := runEntangle(n, s, quantumnet.HostID(alice), quantumnet.HostID(bob), variant, decay)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := json.NewEncoder(out).Encode(sum); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s between hosts %d and %d: %d/%d trials succeeded (%.4f), %d attempts, mean fidelity %.4f, %d pairs recorded\n",
					sum.Variant, sum.Alice, sum.Bob, sum.Successes, sum.Trials, sum.SuccessRate,
					sum.Attempts, sum.MeanFidelity, sum.RecordedEPRs)
			}
			if dumpMetrics {
				mfs, err := reg.Gather()
				if err != nil {
					return err
				}
				for _, mf := range mfs {
					if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64("alice", 0, "First host")
	cmd.Flags().Int64("bob", 1, "Second host, adjacent to the first")
	cmd.Flags().String("variant", quantumnet.VariantECHP, "Protocol variant: echp, on_demand or replay")
	cmd.Flags().Int("trials", 0, "Override the scenario trial count")
	cmd.Flags().Float64("decay", 0, "Fidelity lost by stored qubits before each trial")
	cmd.Flags().Bool("metrics", false, "Write Prometheus metrics to stderr")
	return cmd
}

func runEntangle(n *quantumnet.Network, s *config.Scenario, a, b quantumnet.HostID, variant string, decay float64) (entangleSummary, error) {
	sum := entangleSummary{Variant: variant, Alice: int64(a), Bob: int64(b), Trials: s.Trials}
	ha, err := n.Host(a)
	if err != nil {
		return sum, err
	}
	hb, err := n.Host(b)
	if err != nil {
		return sum, err
	}
	if !ha.IsConnected(b) {
		return sum, fmt.Errorf("%w: %d and %d", quantumnet.ErrNotAdjacent, a, b)
	}

	perTrial := 1
	if variant == quantumnet.VariantReplay {
		perTrial = quantumnet.DefaultMaxReplayAttempts
		if s.MaxReplayAttempts > 0 {
			perTrial = s.MaxReplayAttempts
		}
	}
	filler := s.NewFiller(rand.NewPCG(s.Seed, 1))
	var fidelities []float64
	for i := 0; i < s.Trials; i++ {
		for _, h := range []*quantumnet.Host{ha, hb} {
			if _, err := filler.Fill(n, h.ID(), perTrial); err != nil {
				return sum, err
			}
			if err := h.DecayMemory(decay); err != nil {
				return sum, err
			}
		}

		var res quantumnet.Heralding
		attempts := 1
		switch variant {
		case quantumnet.VariantECHP:
			res, err = n.Entangle(a, b)
		case quantumnet.VariantOnDemand:
			res, err = n.Physical().HeraldOnDemand(ha, hb)
		case quantumnet.VariantReplay:
			var out quantumnet.ReplayOutcome
			out, err = n.Physical().ECHPOnReplay(ha, hb)
			res, attempts = out.Heralding, out.Attempts
		default:
			return sum, fmt.Errorf("unknown variant %q", variant)
		}
		if err != nil {
			return sum, err
		}
		if res.Success && variant != quantumnet.VariantECHP {
			if err := n.RecordEPR(a, b, res.Pair); err != nil {
				return sum, err
			}
		}
		sum.Attempts += attempts
		if res.Success {
			sum.Successes++
		}
		fidelities = append(fidelities, res.Fidelity)
	}
	if s.Trials > 0 {
		sum.SuccessRate = float64(sum.Successes) / float64(s.Trials)
		sum.MeanFidelity = stat.Mean(fidelities, nil)
	}
	sum.RecordedEPRs = len(n.EPRs(a, b))
	return sum, nil
}
