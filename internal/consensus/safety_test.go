package consensus

import (
	"slices"
	"testing"

	"Casper/internal/estimator"
	"Casper/internal/message"
)

// sixValidators are the equally weighted validators of the safety scenarios.
var sixValidators = []Info{
	{Name: "Test", Weight: 100},
	{Name: "Andy", Weight: 100},
	{Name: "Brenda", Weight: 100},
	{Name: "Cam", Weight: 100},
	{Name: "Donna", Weight: 100},
	{Name: "Joe", Weight: 100},
}

// putChain stores one message per estimate for sender, each citing the
// previous one, and returns their hashes in order.
func putChain(t *testing.T, v *Validator, sender string, estimates ...int64) []message.Hash {
	t.Helper()

	var hashes []message.Hash
	for _, est := range estimates {
		rec := message.Record{Sender: sender, Estimate: est}
		if len(hashes) > 0 {
			rec.Justification = []message.Hash{hashes[len(hashes)-1]}
		}

		h, err := v.Store().Put(rec)
		if err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
		hashes = append(hashes, h)
	}

	return hashes
}

func TestFindContradictingFutureMsg(t *testing.T) {
	v := newTestValidator(t, "Test", 0, 0, estimator.Binary{})

	seq := putChain(t, v, "Adam", 0, 0, 0, 1, 0, 0)
	a, b, c, d, e, f := seq[0], seq[1], seq[2], seq[3], seq[4], seq[5]

	outside := storeMsg(t, v, leaf("Zed", 1))

	tests := []struct {
		name  string
		hash  message.Hash
		want  message.Hash
		found bool
	}{
		{"A finds D", a, d, true},
		{"B finds D", b, d, true},
		{"C finds D", c, d, true},
		{"D finds E", d, e, true},
		{"nothing after E", e, message.Hash{}, false},
		{"nothing after F", f, message.Hash{}, false},
		{"absent hash searches from the start", outside, a, true},
	}

	for _, tt := range tests {
		got, found, err := v.findContradictingFutureMsg(tt.hash, seq)
		if err != nil {
			t.Fatalf("%s: findContradictingFutureMsg failed: %v", tt.name, err)
		}
		if found != tt.found || got != tt.want {
			t.Errorf("%s: got (%s, %v), want (%s, %v)", tt.name, got.Short(), found, tt.want.Short(), tt.found)
		}
	}
}

func TestIsAttackable(t *testing.T) {
	v := newTestValidator(t, "Test", 0, 0, estimator.Binary{})

	adam := putChain(t, v, "Adam", 0, 0, 0, 1, 0, 0)
	brenda := putChain(t, v, "Brenda", 0, 0)

	v.sequences["Adam"] = adam
	v.sequences["Brenda"] = brenda

	put := func(just ...message.Hash) message.Hash {
		h, err := v.Store().Put(message.Record{Sender: "Joe", Estimate: 0, Justification: just})
		if err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
		return h
	}

	tests := []struct {
		name string
		hash message.Hash
		want bool
	}{
		{"no later contradiction", put(adam[4]), false},
		{"contradiction after the cited message", put(adam[1]), true},
		{"one of two entries contradicted", put(adam[1], brenda[1]), true},
		{"stable sender", put(brenda[0]), false},
	}

	for _, tt := range tests {
		got, err := v.IsAttackable(tt.hash)
		if err != nil {
			t.Fatalf("%s: IsAttackable failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: IsAttackable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSafetyFullPropagation(t *testing.T) {
	v := newTestValidator(t, "Test", 100, 0, estimator.Binary{})
	v.LearnValidators(sixValidators)

	first := make([]message.Message, len(sixValidators))
	for i, info := range sixValidators {
		first[i] = leaf(info.Name, 0)
	}

	second := make([]message.Message, len(sixValidators))
	for i, info := range sixValidators {
		second[i] = msg(info.Name, 0, first...)
	}

	mustParse(t, v, msg("Andy", 0, second...))

	safe, err := v.FindSafeValidators(0)
	if err != nil {
		t.Fatalf("FindSafeValidators failed: %v", err)
	}
	for _, info := range sixValidators {
		if !slices.Contains(safe, info.Name) {
			t.Errorf("%s should be safe on 0, got %v", info.Name, safe)
		}
	}

	against, err := v.FindSafeValidators(1)
	if err != nil {
		t.Fatalf("FindSafeValidators failed: %v", err)
	}
	if len(against) != 0 {
		t.Errorf("no validator should be safe on 1, got %v", against)
	}

	assertSafety(t, v, 0, 1)
	assertSafety(t, v, 1, 0)
}

func TestSafetyNoMessages(t *testing.T) {
	v := newTestValidator(t, "Test", 100, 0, estimator.Binary{})
	v.LearnValidators(sixValidators)

	for _, est := range []int64{0, 1} {
		safe, err := v.FindSafeValidators(est)
		if err != nil {
			t.Fatalf("FindSafeValidators failed: %v", err)
		}
		if len(safe) != 0 {
			t.Errorf("no validator should be safe on %d, got %v", est, safe)
		}

		assertSafety(t, v, est, 0)
	}
}

func TestSafetyAbsentValidators(t *testing.T) {
	v := newTestValidator(t, "Test", 100, 0, estimator.Binary{})
	v.LearnValidators(sixValidators[1:])

	test01, err := v.GenerateMsg()
	if err != nil {
		t.Fatalf("GenerateMsg failed: %v", err)
	}

	andy01 := storeMsg(t, v, leaf("Andy", 1))
	brenda01 := storeMsg(t, v, leaf("Brenda", 0))
	cam01 := storeMsg(t, v, leaf("Cam", 1))

	put := func(rec message.Record) message.Hash {
		h, err := v.Store().Put(rec)
		if err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
		return h
	}

	// Cam leaves out cam01, so this message is rejected.
	cam02 := put(message.Record{Sender: "Cam", Estimate: 1, Justification: []message.Hash{andy01}})

	// Andy has seen everyone's latest message.
	andy02 := put(message.Record{
		Sender:        "Andy",
		Estimate:      0,
		Justification: []message.Hash{andy01, brenda01, cam01, test01},
	})

	if err := v.ParseMsg(andy02); err != nil {
		t.Fatalf("parse andy02 failed: %v", err)
	}
	if err := v.ParseMsg(cam02); !IsByzantine(err) {
		t.Fatalf("parse cam02: expected a byzantine error, got %v", err)
	}

	if _, err := v.GenerateMsg(); err != nil {
		t.Fatalf("GenerateMsg failed: %v", err)
	}

	safe, err := v.FindSafeValidators(0)
	if err != nil {
		t.Fatalf("FindSafeValidators failed: %v", err)
	}
	if !slices.Equal(safe, []string{"Test", "Andy"}) {
		t.Errorf("safe validators = %v, want [Test Andy]", safe)
	}

	assertSafety(t, v, 0, 2.0/6)
}

func TestSafetyIntegerSupport(t *testing.T) {
	tests := []struct {
		name     string
		weights  []Info
		votes    map[string]int64
		estimate int64
		safety   float64
	}{
		{
			name:     "unanimous",
			weights:  []Info{{Name: "Andy", Weight: 100}, {Name: "Brenda", Weight: 100}},
			votes:    map[string]int64{"Andy": 5, "Brenda": 5},
			estimate: 5,
			safety:   1,
		},
		{
			name:     "abstaining voter",
			weights:  []Info{{Name: "Andy", Weight: 100}, {Name: "Brenda", Weight: 100}, {Name: "Zebra", Weight: 100}},
			votes:    map[string]int64{"Andy": 5, "Brenda": 5},
			estimate: 5,
			safety:   2.0 / 3,
		},
		{
			name: "four sequential votes",
			weights: []Info{
				{Name: "Andy", Weight: 100}, {Name: "Brenda", Weight: 100},
				{Name: "Catherine", Weight: 100}, {Name: "Dave", Weight: 100},
			},
			votes:    map[string]int64{"Andy": 1, "Brenda": 2, "Catherine": 3, "Dave": 4},
			estimate: 2,
			safety:   1.0 / 4,
		},
		{
			name: "five sequential votes",
			weights: []Info{
				{Name: "Andy", Weight: 100}, {Name: "Brenda", Weight: 100},
				{Name: "Catherine", Weight: 100}, {Name: "Dave", Weight: 100},
				{Name: "Eddy", Weight: 100},
			},
			votes:    map[string]int64{"Andy": 1, "Brenda": 2, "Catherine": 3, "Dave": 4, "Eddy": 5},
			estimate: 3,
			safety:   1.0 / 5,
		},
		{
			name: "uneven weights",
			weights: []Info{
				{Name: "Andy", Weight: 50}, {Name: "Brenda", Weight: 100},
				{Name: "Catherine", Weight: 150}, {Name: "Dave", Weight: 301},
			},
			votes:    map[string]int64{"Andy": 1, "Brenda": 2, "Catherine": 3, "Dave": 4},
			estimate: 4,
			safety:   301.0 / 601,
		},
	}

	for _, tt := range tests {
		v := newTestValidator(t, "Test", 0, 0, estimator.Integer{})
		v.LearnValidators(tt.weights)

		for _, info := range tt.weights {
			if est, ok := tt.votes[info.Name]; ok {
				mustParse(t, v, leaf(info.Name, est))
			}
		}

		est, err := v.Estimate()
		if err != nil {
			t.Fatalf("%s: Estimate failed: %v", tt.name, err)
		}
		if est != tt.estimate {
			t.Errorf("%s: Estimate() = %d, want %d", tt.name, est, tt.estimate)
			continue
		}

		got, err := v.FindSafety(est)
		if err != nil {
			t.Fatalf("%s: FindSafety failed: %v", tt.name, err)
		}
		if got != tt.safety {
			t.Errorf("%s: FindSafety(%d) = %v, want %v", tt.name, est, got, tt.safety)
		}
	}
}

func TestSafetyZeroWeight(t *testing.T) {
	v := newTestValidator(t, "Test", 0, 0, estimator.Binary{})
	assertSafety(t, v, 0, 0)
}

func TestSafetyCacheInvalidation(t *testing.T) {
	v := newTestValidator(t, "Test", 100, 0, estimator.Binary{})

	// Alone, nothing can flip our own estimate.
	assertSafety(t, v, 0, 1)

	// Two unseen validators could both vote 1.
	v.LearnValidators([]Info{{Name: "Andy", Weight: 100}, {Name: "Brenda", Weight: 100}})
	assertSafety(t, v, 0, 0)

	mustParse(t, v, leaf("Andy", 0))
	assertSafety(t, v, 0, 2.0/3)

	mustParse(t, v, leaf("Brenda", 0))
	assertSafety(t, v, 0, 1)
}

func assertSafety(t *testing.T, v *Validator, estimate int64, want float64) {
	t.Helper()

	got, err := v.FindSafety(estimate)
	if err != nil {
		t.Fatalf("FindSafety(%d) failed: %v", estimate, err)
	}
	if got != want {
		t.Errorf("FindSafety(%d) = %v, want %v", estimate, got, want)
	}
}
