package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"Casper/internal/sim"
)

// execute runs the CLI with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestRandomPrintsResult(t *testing.T) {
	out, err := execute(t, "random", "-n", "3", "-m", "2", "-s", "0.5", "--seed", "11")
	if err != nil {
		t.Fatalf("random failed: %v", err)
	}

	var res sim.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}

	if len(res.Decisions) != 3 {
		t.Errorf("got %d decisions, want 3", len(res.Decisions))
	}
	for name, d := range res.Decisions {
		if d.Safety <= 0.5 {
			t.Errorf("validator %s safety %v does not exceed 0.5", name, d.Safety)
		}
	}
}

func TestRandomSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dag.snap")

	if _, err := execute(t, "random", "--seed", "5", "--snapshot", path); err != nil {
		t.Fatalf("random failed: %v", err)
	}

	out, err := execute(t, "snapshot", path)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	var summary snapshotSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not a summary: %v\n%s", err, out)
	}

	// Every validator contributes at least its starting leaf.
	if summary.Records < 3 {
		t.Errorf("got %d records, want at least 3", summary.Records)
	}

	total := 0
	for _, n := range summary.Senders {
		total += n
	}
	if total != summary.Records {
		t.Errorf("sender counts sum to %d, want %d", total, summary.Records)
	}
}

func TestRandomRejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"random", "-n", "1"},
		{"random", "-s", "1.5"},
		{"random", "-m", "0"},
		{"--log-level", "loud", "random"},
	}

	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%s: expected error", strings.Join(args, " "))
		}
	}
}

func TestSnapshotMissingFile(t *testing.T) {
	if _, err := execute(t, "snapshot", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing file")
	}
}
