package consensus

import (
	"fmt"

	"Casper/internal/message"
)

// GenerateMsg produces a message carrying the validator's current view.
//
// If no latest message changed since the validator last produced one, the
// previous message is returned unchanged. Otherwise the new message cites
// the latest message of every known sender, in the order senders were
// first seen, and carries the estimate over them. It goes through the same
// verification as received messages before becoming our latest.
func (v *Validator) GenerateMsg() (message.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.dirty {
		return v.latest[v.name], nil
	}

	est, err := v.estimate()
	if err != nil {
		return message.Hash{}, err
	}

	rec := message.Record{
		Sender:        v.name,
		Estimate:      est,
		Justification: make([]message.Hash, 0, len(v.latestOrder)),
	}
	for _, sender := range v.latestOrder {
		rec.Justification = append(rec.Justification, v.latest[sender])
	}

	hash, err := v.store.Put(rec)
	if err != nil {
		return message.Hash{}, fmt.Errorf("store generated message:\n%w", err)
	}

	if err := v.accept(hash, rec); err != nil {
		return message.Hash{}, fmt.Errorf("verify generated message:\n%w", err)
	}

	v.dirty = false
	v.metrics.generated.Inc()

	v.log.Debug("message generated", "msg", hash.Short(), "estimate", est, "refs", len(rec.Justification))

	return hash, nil
}
