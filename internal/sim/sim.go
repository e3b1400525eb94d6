// Package sim drives a set of binary validators over a simulated network
// until every one of them considers its estimate safe.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"Casper/internal/consensus"
	"Casper/internal/estimator"
	"Casper/internal/logger"
	"Casper/internal/message"
	"Casper/internal/network"
)

const (
	// defaultMaxRounds bounds a run that never reaches the safety ratio.
	defaultMaxRounds = 10000

	// validatorWeight is the weight given to every simulated validator.
	validatorWeight = 100
)

var (
	// ErrInvalidConfig is returned by NewBinary for unusable settings.
	ErrInvalidConfig = errors.New("invalid simulation config")

	// ErrNoConsensus is returned when MaxRounds pass without every
	// validator exceeding the safety ratio.
	ErrNoConsensus = errors.New("no consensus reached")
)

// Config holds the simulation parameters.
type Config struct {
	// ValidatorCount is the number of validators, at least 2.
	ValidatorCount int

	// MessagesPerRound is the number of messages sent each round.
	MessagesPerRound int

	// SafetyRatio is the safety every validator must exceed, in [0, 1).
	SafetyRatio float64

	// MaxRounds bounds the run. Defaults to 10000.
	MaxRounds int

	// Seed drives starting estimates and message routing.
	Seed uint64

	// Logger receives progress and validator logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Registerer, when set, receives every validator's metrics.
	Registerer prometheus.Registerer
}

// ValidatorConfig is the starting configuration of one validator.
type ValidatorConfig struct {
	Name          string `json:"name"`
	Weight        uint64 `json:"weight"`
	StartingPoint int64  `json:"startingPoint"`
}

// Decision is the final estimate of a validator and its safety.
type Decision struct {
	Estimate int64   `json:"estimate"`
	Safety   float64 `json:"safety"`
}

// Result is the outcome of a run.
type Result struct {
	Decisions     map[string]Decision `json:"decisions"`
	InitialConfig []ValidatorConfig   `json:"initialConfig"`
	Log           []network.Packet    `json:"log"`
	Rounds        int                 `json:"rounds"`
}

// Simulator runs binary validators sharing one message store.
type Simulator struct {
	cfg        Config
	rng        *rand.Rand
	store      *message.Store
	net        *network.Network
	validators []*consensus.Validator
	initial    []ValidatorConfig
	log        *slog.Logger
}

// NewBinary creates a simulator whose validators start on a random 0 or 1.
func NewBinary(cfg Config) (*Simulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	store, err := message.NewMemoryStore()
	if err != nil {
		return nil, fmt.Errorf("create message store:\n%w", err)
	}

	s := &Simulator{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		store: store,
		log:   cfg.Logger,
	}

	names := make([]string, cfg.ValidatorCount)
	infos := make([]consensus.Info, cfg.ValidatorCount)

	for i := range names {
		names[i] = strconv.Itoa(i)
		infos[i] = consensus.Info{Name: names[i], Weight: validatorWeight}

		s.initial = append(s.initial, ValidatorConfig{
			Name:          names[i],
			Weight:        validatorWeight,
			StartingPoint: int64(s.rng.IntN(2)),
		})
	}

	for _, vc := range s.initial {
		v, err := consensus.New(vc.Name, vc.Weight, vc.StartingPoint, store, estimator.Binary{},
			consensus.WithLogger(cfg.Logger),
			consensus.WithRegisterer(cfg.Registerer),
		)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create validator %s:\n%w", vc.Name, err)
		}

		v.LearnValidators(infos)
		s.validators = append(s.validators, v)
	}

	s.net = network.New(names)

	return s, nil
}

// Store returns the message store shared by the validators.
func (s *Simulator) Store() *message.Store {
	return s.store
}

// Close releases the message store.
func (s *Simulator) Close() error {
	return s.store.Close()
}

// Run plays rounds until every validator's safety on its own estimate
// exceeds the configured ratio.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	for round := 1; round <= s.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.doRound(ctx); err != nil {
			return nil, fmt.Errorf("round %d:\n%w", round, err)
		}

		done, err := s.consensusReached()
		if err != nil {
			return nil, fmt.Errorf("round %d:\n%w", round, err)
		}

		if done {
			s.log.Info("consensus reached", "rounds", round, "validators", len(s.validators), logger.Timed(start))
			return s.result(round)
		}
	}

	return nil, fmt.Errorf("%w after %d rounds", ErrNoConsensus, s.cfg.MaxRounds)
}

// doRound sends MessagesPerRound messages between distinct random pairs,
// then lets every validator parse its inbox.
func (s *Simulator) doRound(ctx context.Context) error {
	for range s.cfg.MessagesPerRound {
		perm := s.rng.Perm(len(s.validators))
		to, from := s.validators[perm[0]], s.validators[perm[1]]

		hash, err := from.GenerateMsg()
		if err != nil {
			return fmt.Errorf("generate message for %s:\n%w", from.Name(), err)
		}

		if err := s.net.Send(hash, from.Name(), to.Name()); err != nil {
			return err
		}
	}

	g, _ := errgroup.WithContext(ctx)

	for _, v := range s.validators {
		g.Go(func() error {
			return s.deliver(v)
		})
	}

	return g.Wait()
}

// deliver parses the queued packets of v. Byzantine messages are logged
// and skipped.
func (s *Simulator) deliver(v *consensus.Validator) error {
	packets, err := s.net.Receive(v.Name())
	if err != nil {
		return err
	}

	for _, p := range packets {
		err := v.ParseMsg(p.Msg)
		if consensus.IsByzantine(err) {
			s.log.Warn("rejected message", "validator", v.Name(), "from", p.From, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("validator %s parse %s:\n%w", v.Name(), p.Msg.Short(), err)
		}
	}

	return nil
}

// consensusReached reports whether every validator's safety on its own
// estimate exceeds the ratio.
func (s *Simulator) consensusReached() (bool, error) {
	for _, v := range s.validators {
		est, err := v.Estimate()
		if err != nil {
			return false, err
		}

		safety, err := v.FindSafety(est)
		if err != nil {
			return false, err
		}

		if safety <= s.cfg.SafetyRatio {
			return false, nil
		}
	}

	return true, nil
}

func (s *Simulator) result(rounds int) (*Result, error) {
	r := &Result{
		Decisions:     make(map[string]Decision, len(s.validators)),
		InitialConfig: s.initial,
		Log:           s.net.Log(),
		Rounds:        rounds,
	}

	for _, v := range s.validators {
		est, err := v.Estimate()
		if err != nil {
			return nil, err
		}

		safety, err := v.FindSafety(est)
		if err != nil {
			return nil, err
		}

		r.Decisions[v.Name()] = Decision{Estimate: est, Safety: safety}
	}

	return r, nil
}

func (c Config) validate() error {
	switch {
	case c.ValidatorCount < 2:
		return fmt.Errorf("%w: need at least 2 validators, got %d", ErrInvalidConfig, c.ValidatorCount)
	case c.MessagesPerRound < 1:
		return fmt.Errorf("%w: messages per round must be positive, got %d", ErrInvalidConfig, c.MessagesPerRound)
	case c.SafetyRatio < 0 || c.SafetyRatio >= 1:
		return fmt.Errorf("%w: safety ratio must be in [0, 1), got %v", ErrInvalidConfig, c.SafetyRatio)
	case c.MaxRounds < 0:
		return fmt.Errorf("%w: max rounds must not be negative, got %d", ErrInvalidConfig, c.MaxRounds)
	default:
		return nil
	}
}
