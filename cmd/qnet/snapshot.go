package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alan-christopher/quantumnet/quantumnet"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save or inspect network snapshots",
	}
	cmd.AddCommand(newSnapshotWriteCmd(), newSnapshotReadCmd())
	return cmd
}

func newSnapshotWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write FILE",
		Short: "Build the scenario network, provision qubits and save it to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, _ := cmd.Flags().GetInt("rounds")
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
			created := 0
			for i := 0; i < rounds; i++ {
				c, err := n.ProvisionOnDemand()
				if err != nil {
					return err
				}
				created += c
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}
			if err := n.WriteSnapshot(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d hosts, %d qubits provisioned\n", args[0], len(n.Hosts()), created)
			return nil
		},
	}
	cmd.Flags().Int("rounds", 1, "Rounds of on-demand qubit creation before saving")
	return cmd
}

func newSnapshotReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read FILE",
		Short: "Load a snapshot, check its consistency and print the network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := loadScenario(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(s)
			defer logger.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open snapshot: %w", err)
			}
			defer f.Close()
			n, err := quantumnet.ReadSnapshot(f, quantumnet.NetworkOpts{
				Logger:            logger,
				Source:            s.Source(),
				MaxReplayAttempts: s.MaxReplayAttempts,
			})
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			if err := n.CheckInvariants(); err != nil {
				return fmt.Errorf("inconsistent snapshot: %w", err)
			}
			return printNetwork(cmd.OutOrStdout(), n, jsonOut)
		},
	}
}
