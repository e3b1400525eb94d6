package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"Casper/internal/logger"
	"Casper/internal/sim"
	"Casper/internal/snapshot"
)

func randomCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "random",
		Short: "Run binary validators with random message passing until safe",
		Args:  cobra.NoArgs,
		RunE:  randomFunc,
	}
	addRandomFlags(c.Flags())
	return c
}

func randomFunc(c *cobra.Command, _ []string) error {
	cfg, err := parseRandomFlags(c.Flags())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfg.Sim.Registerer = reg
	cfg.Sim.Logger = logger.With("cmd", "random")

	s, err := sim.NewBinary(cfg.Sim)
	if err != nil {
		return fmt.Errorf("create simulator:\n%w", err)
	}
	defer s.Close()

	res, err := s.Run(c.Context())
	if err != nil {
		return fmt.Errorf("run simulation:\n%w", err)
	}

	if cfg.SnapshotPath != "" {
		if err := writeSnapshot(s, cfg.SnapshotPath); err != nil {
			return err
		}
	}

	if cfg.Metrics {
		if err := writeMetrics(reg); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(res)
}

// writeSnapshot exports the simulator's message DAG to path.
func writeSnapshot(s *sim.Simulator, path string) error {
	data, err := snapshot.Export(s.Store())
	if err != nil {
		return fmt.Errorf("export snapshot:\n%w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot to %s:\n%w", path, err)
	}

	logger.Info("snapshot written", "path", path, "records", s.Store().Len(), "bytes", len(data))

	return nil
}

// writeMetrics prints every gathered metric family in text format to stderr.
func writeMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics:\n%w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			return err
		}
	}

	return nil
}
