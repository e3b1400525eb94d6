package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Casper/internal/message"
	"Casper/internal/snapshot"
)

// snapshotSummary is printed by the snapshot command.
type snapshotSummary struct {
	Records int            `json:"records"`
	Senders map[string]int `json:"senders"`
}

func snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <file>",
		Short: "Verify a message DAG snapshot and summarise its records",
		Args:  cobra.ExactArgs(1),
		RunE:  snapshotFunc,
	}
}

func snapshotFunc(c *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	store, err := message.NewMemoryStore()
	if err != nil {
		return fmt.Errorf("create message store:\n%w", err)
	}
	defer store.Close()

	n, err := snapshot.Import(store, data)
	if err != nil {
		return fmt.Errorf("import %s:\n%w", args[0], err)
	}

	summary, err := summarise(store)
	if err != nil {
		return err
	}
	summary.Records = n

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(summary)
}

// summarise counts the stored records per sender.
func summarise(store *message.Store) (*snapshotSummary, error) {
	hashes, err := store.Hashes()
	if err != nil {
		return nil, fmt.Errorf("list records:\n%w", err)
	}

	s := &snapshotSummary{Senders: make(map[string]int)}

	for _, h := range hashes {
		rec, err := store.Retrieve(h)
		if err != nil {
			return nil, err
		}
		s.Senders[rec.Sender]++
	}

	return s, nil
}
