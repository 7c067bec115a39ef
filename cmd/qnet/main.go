// Command qnet builds simulated quantum networks from YAML scenarios and runs
// entanglement attempts over them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alan-christopher/quantumnet/quantumnet/config"
	"github.com/alan-christopher/quantumnet/quantumnet/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qnet",
		Short: "Simulate the physical layer of a quantum network",
		Long: `qnet builds a network of quantum hosts from a scenario file and runs
entanglement heralding protocols between neighbouring hosts.

Scenario settings can be overridden with QNET_SEED, QNET_TRIALS,
QNET_LOG_LEVEL and QNET_LOG_FORMAT.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML scenario file (defaults to a five host line)")
	rootCmd.PersistentFlags().String("topology", "", "Override the scenario topology: Grid, Line or Ring")
	rootCmd.PersistentFlags().IntSlice("args", nil, "Override the scenario topology arguments")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newTopologyCmd(),
		newEntangleCmd(),
		newSnapshotCmd(),
	)
	return rootCmd
}

// loadScenario resolves the scenario for cmd from its --config file, the
// environment and the topology override flags, in that order.
func loadScenario(cmd *cobra.Command) (*config.Scenario, error) {
	path, _ := cmd.Flags().GetString("config")
	s := config.Default()
	if path != "" {
		var err error
		if s, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	if name, _ := cmd.Flags().GetString("topology"); name != "" {
		s.Topology.Name = name
	}
	if cmd.Flags().Changed("args") {
		s.Topology.Args, _ = cmd.Flags().GetIntSlice("args")
	}
	return s, nil
}

// newLogger honours QNET_LOG_LEVEL and QNET_LOG_FORMAT over the scenario.
func newLogger(s *config.Scenario) *zap.Logger {
	cfg := logging.Config{Level: s.Logging.Level, Format: s.Logging.Format}
	if v := os.Getenv("QNET_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("QNET_LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	return logging.New(cfg)
}
