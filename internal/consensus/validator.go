package consensus

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"Casper/internal/estimator"
	"Casper/internal/message"
)

// Info names a validator and its weight.
type Info struct {
	Name   string `json:"name"`
	Weight uint64 `json:"weight"`
}

// Validator is one participant's local view of the protocol.
// It tracks the latest message and the linear history of every sender,
// verifies incoming messages and produces its own. All methods are safe
// for concurrent use; calls on one validator are serialised.
type Validator struct {
	mu sync.Mutex

	name      string
	store     *message.Store
	estimator estimator.Estimator
	weights   *weightTable

	latest      map[string]message.Hash   // latest accepted message per sender
	latestOrder []string                  // senders in the order first seen
	sequences   map[string][]message.Hash // canonical history per sender, oldest first
	byzantine   map[string]bool
	trusted     map[message.Hash]bool

	safety map[int64]float64 // memoised FindSafety results for the current latest set
	dirty  bool              // latest changed since our own message was produced

	log        *slog.Logger
	registerer prometheus.Registerer
	metrics    *metrics
}

// Option configures a Validator during creation.
type Option func(*Validator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.log = l
	}
}

// WithRegisterer registers the validator metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(v *Validator) {
		v.registerer = reg
	}
}

// New creates a validator named name with the given weight and starting
// estimate. The starting leaf message is stored and becomes the validator's
// own latest message.
func New(name string, weight uint64, start int64, store *message.Store, est estimator.Estimator, opts ...Option) (*Validator, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty validator name", ErrInvalidArgument)
	}
	if store == nil || est == nil {
		return nil, fmt.Errorf("%w: validator %s needs a store and an estimator", ErrInvalidArgument, name)
	}

	v := &Validator{
		name:      name,
		store:     store,
		estimator: est,
		weights:   newWeightTable(),
		latest:    make(map[string]message.Hash),
		sequences: make(map[string][]message.Hash),
		byzantine: make(map[string]bool),
		trusted:   make(map[message.Hash]bool),
		safety:    make(map[int64]float64),
		log:       slog.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}

	v.log = v.log.With("validator", name)

	m, err := newMetrics(name, v.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics:\n%w", err)
	}
	v.metrics = m

	leaf, err := store.Store(message.Leaf(name, start))
	if err != nil {
		return nil, fmt.Errorf("store initial message:\n%w", err)
	}

	v.weights.set(name, weight)
	v.sequences[name] = []message.Hash{leaf}
	v.trusted[leaf] = true
	v.setLatest(name, leaf)
	v.dirty = false

	return v, nil
}

// Name returns the validator identity.
func (v *Validator) Name() string {
	return v.name
}

// Store returns the message store the validator reads from.
func (v *Validator) Store() *message.Store {
	return v.store
}

// LearnValidators registers validators or overwrites their weight.
// Known histories, latest messages and byzantine flags are kept.
func (v *Validator) LearnValidators(infos []Info) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, info := range infos {
		v.weights.set(info.Name, info.Weight)

		if _, ok := v.sequences[info.Name]; !ok {
			v.sequences[info.Name] = []message.Hash{}
		}
	}

	clear(v.safety)
}

// Weight returns the weight of name, 0 for unknown validators.
func (v *Validator) Weight(name string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.weights.weight(name)
}

// WeightSum returns the total weight of every known validator, self included.
func (v *Validator) WeightSum() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.weights.sum()
}

// Validators returns the known validators in registration order.
func (v *Validator) Validators() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.weights.list()
}

// Estimate runs the estimator over the current latest messages.
func (v *Validator) Estimate() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.estimate()
}

// LatestMsgHash returns the latest message accepted from sender.
func (v *Validator) LatestMsgHash(sender string) (message.Hash, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	h, ok := v.latest[sender]
	return h, ok
}

// MsgSequence returns a copy of the known history of sender, oldest first.
func (v *Validator) MsgSequence(sender string) []message.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()

	return slices.Clone(v.sequences[sender])
}

// IsByzantine reports whether sender has been caught violating the protocol.
func (v *Validator) IsByzantine(sender string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.byzantine[sender]
}

// Byzantine returns every flagged sender, sorted.
func (v *Validator) Byzantine() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := make([]string, 0, len(v.byzantine))
	for s := range v.byzantine {
		result = append(result, s)
	}
	slices.Sort(result)

	return result
}

// IsTrusted reports whether hash has been verified by this validator.
func (v *Validator) IsTrusted(hash message.Hash) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.trusted[hash]
}

// estimate runs the estimator over the latest messages. Caller holds mu.
func (v *Validator) estimate() (int64, error) {
	votes, err := v.latestVotes()
	if err != nil {
		return 0, err
	}

	return v.estimator.Estimate(votes, v.weights.weight), nil
}

// latestVotes loads the latest message of every sender in first-seen order.
func (v *Validator) latestVotes() ([]estimator.Vote, error) {
	votes := make([]estimator.Vote, 0, len(v.latestOrder))

	for _, sender := range v.latestOrder {
		rec, err := v.store.Retrieve(v.latest[sender])
		if err != nil {
			return nil, fmt.Errorf("load latest message of %s:\n%w", sender, err)
		}

		votes = append(votes, estimator.Vote{Sender: rec.Sender, Estimate: rec.Estimate})
	}

	return votes, nil
}

// setLatest promotes hash to the latest message of sender and drops every
// result derived from the previous latest set.
func (v *Validator) setLatest(sender string, hash message.Hash) {
	if _, ok := v.latest[sender]; !ok {
		v.latestOrder = append(v.latestOrder, sender)
	}

	v.latest[sender] = hash
	v.dirty = true
	clear(v.safety)

	v.metrics.latestUpdates.Inc()
}
