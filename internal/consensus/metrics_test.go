package consensus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"Casper/internal/estimator"
	"Casper/internal/message"
)

func TestMetricsCountFaults(t *testing.T) {
	reg := prometheus.NewRegistry()
	v := newTestValidator(t, "Test", 0, 0, estimator.Binary{}, WithRegisterer(reg))

	mustParse(t, v, brianHistory("Eddy"))
	if _, err := parse(t, v, brianHistory("Xena")); !IsByzantine(err) {
		t.Fatalf("expected a byzantine error, got %v", err)
	}

	if got := testutil.ToFloat64(v.metrics.faults.WithLabelValues("history_fork")); got != 1 {
		t.Errorf("history_fork faults = %v, want 1", got)
	}

	// Five Brian messages and four other leaves, then Xena before the fork.
	if got := testutil.ToFloat64(v.metrics.accepted); got != 10 {
		t.Errorf("accepted messages = %v, want 10", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"casper_messages_accepted_total",
		"casper_latest_updates_total",
		"casper_byzantine_faults_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestMetricsCountGenerated(t *testing.T) {
	v := newTestValidator(t, "Test", 1, 0, estimator.Binary{})
	mustParse(t, v, leaf("Andy", 0))

	for range 3 {
		if _, err := v.GenerateMsg(); err != nil {
			t.Fatalf("GenerateMsg failed: %v", err)
		}
	}

	if got := testutil.ToFloat64(v.metrics.generated); got != 1 {
		t.Errorf("generated messages = %v, want 1", got)
	}
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	store, err := message.NewMemoryStore()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	if _, err := New("Test", 1, 0, store, estimator.Binary{}, WithRegisterer(reg)); err != nil {
		t.Fatalf("first validator failed: %v", err)
	}
	if _, err := New("Test", 1, 0, store, estimator.Binary{}, WithRegisterer(reg)); err == nil {
		t.Error("registering the same validator twice should fail")
	}
}
