package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"Casper/internal/sim"
)

const (
	logLevelKey         = "log-level"
	validatorCountKey   = "validator-count"
	messagesPerRoundKey = "messages-per-round"
	safetyRatioKey      = "safety-ratio"
	seedKey             = "seed"
	maxRoundsKey        = "max-rounds"
	snapshotKey         = "snapshot"
	metricsKey          = "metrics"
)

// RandomConfig holds the options of the random command.
type RandomConfig struct {
	Sim sim.Config

	// SnapshotPath, when set, receives the final message DAG.
	SnapshotPath string

	// Metrics prints the validator counters to stderr after the run.
	Metrics bool
}

func addRandomFlags(flags *pflag.FlagSet) {
	flags.IntP(validatorCountKey, "n", 3, "Number of validators")
	flags.IntP(messagesPerRoundKey, "m", 1, "Messages sent per round")
	flags.Float64P(safetyRatioKey, "s", 2.0/3, "Safety every validator must exceed")
	flags.Uint64(seedKey, 0, "Seed for starting estimates and routing")
	flags.Int(maxRoundsKey, 0, "Round limit, 0 for the default")
	flags.String(snapshotKey, "", "Write the final message DAG snapshot to this file")
	flags.Bool(metricsKey, false, "Print validator metrics to stderr")
}

func parseRandomFlags(flags *pflag.FlagSet) (*RandomConfig, error) {
	cfg := &RandomConfig{}

	var err error

	if cfg.Sim.ValidatorCount, err = flags.GetInt(validatorCountKey); err != nil {
		return nil, err
	}
	if cfg.Sim.MessagesPerRound, err = flags.GetInt(messagesPerRoundKey); err != nil {
		return nil, err
	}
	if cfg.Sim.SafetyRatio, err = flags.GetFloat64(safetyRatioKey); err != nil {
		return nil, err
	}
	if cfg.Sim.Seed, err = flags.GetUint64(seedKey); err != nil {
		return nil, err
	}
	if cfg.Sim.MaxRounds, err = flags.GetInt(maxRoundsKey); err != nil {
		return nil, err
	}
	if cfg.SnapshotPath, err = flags.GetString(snapshotKey); err != nil {
		return nil, err
	}
	if cfg.Metrics, err = flags.GetBool(metricsKey); err != nil {
		return nil, err
	}

	if cfg.Sim.ValidatorCount < 2 {
		return nil, fmt.Errorf("--%s must be at least 2, got %d", validatorCountKey, cfg.Sim.ValidatorCount)
	}

	return cfg, nil
}
