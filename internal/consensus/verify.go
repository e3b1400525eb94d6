package consensus

import (
	"fmt"
	"slices"

	"Casper/internal/estimator"
	"Casper/internal/message"
)

// ParseMsg verifies hash and every message of its justification closure
// that is not yet trusted, dependencies first. Accepted messages become
// trusted and may become the latest message of their sender.
//
// A protocol violation stops the walk and returns a *ByzantineError; its
// sender stays flagged. Messages verified before the violation stay
// accepted. A missing hash returns message.ErrUnknownHash and a cyclic
// closure returns ErrInvalidArgument.
func (v *Validator) ParseMsg(hash message.Hash) error {
	if hash.IsZero() {
		return fmt.Errorf("%w: zero message hash", ErrInvalidArgument)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.visit(hash, make(map[message.Hash]bool))
}

// visit verifies the closure of hash in post-order.
// visiting holds the hashes on the current path.
func (v *Validator) visit(hash message.Hash, visiting map[message.Hash]bool) error {
	if v.trusted[hash] {
		return nil
	}
	if visiting[hash] {
		return fmt.Errorf("%w: cycle through message %s", ErrInvalidArgument, hash.Short())
	}

	rec, err := v.store.Retrieve(hash)
	if err != nil {
		return err
	}

	visiting[hash] = true
	for _, j := range rec.Justification {
		if err := v.visit(j, visiting); err != nil {
			return err
		}
	}
	delete(visiting, hash)

	return v.accept(hash, rec)
}

// accept runs the verification checks on a message whose justification is
// already trusted, then marks it trusted.
func (v *Validator) accept(hash message.Hash, rec message.Record) error {
	latest, err := v.verify(hash, rec)
	if err != nil {
		return err
	}

	v.trusted[hash] = true
	v.metrics.accepted.Inc()

	if latest {
		v.setLatest(rec.Sender, hash)
	}

	v.log.Debug("message accepted", "sender", rec.Sender, "msg", hash.Short(), "latest", latest)

	return nil
}

// verify checks rec against the protocol rules, first violation wins.
// On success it extends the known history of the sender and reports
// whether rec is the sender's new latest message.
func (v *Validator) verify(hash message.Hash, rec message.Record) (bool, error) {
	refs, err := v.retrieveAll(rec.Justification)
	if err != nil {
		return false, err
	}

	if len(refs) > 0 {
		votes := make([]estimator.Vote, len(refs))
		for i, r := range refs {
			votes[i] = estimator.Vote{Sender: r.Sender, Estimate: r.Estimate}
		}

		if v.estimator.Estimate(votes, v.weights.weight) != rec.Estimate {
			return false, v.fault(FaultIncorrectEstimate, rec.Sender, hash)
		}
	}

	senders := make(map[string]bool, len(refs))
	for _, r := range refs {
		if senders[r.Sender] {
			return false, v.fault(FaultDuplicateJustificationSender, rec.Sender, hash)
		}
		senders[r.Sender] = true
	}

	seq, err := v.ownHistory(hash, rec, refs)
	if err != nil {
		return false, err
	}

	return v.extendSequence(rec.Sender, hash, seq)
}

// ownHistory follows the sender's own messages back from hash until a
// message with an empty justification, or until a trusted message already
// in the sender's known sequence, whose prefix is then reused.
// Returns the chain oldest first.
func (v *Validator) ownHistory(hash message.Hash, rec message.Record, refs []message.Record) ([]message.Hash, error) {
	seq := []message.Hash{hash}
	known := v.sequences[rec.Sender]
	limit := v.store.Len() + 1

	for len(rec.Justification) > 0 {
		idx := slices.IndexFunc(refs, func(r message.Record) bool {
			return r.Sender == rec.Sender
		})
		if idx < 0 {
			return nil, v.fault(FaultOmittedOwnHistory, rec.Sender, hash)
		}

		if len(seq) > limit {
			return nil, fmt.Errorf("%w: history of %s does not terminate", ErrInvalidArgument, rec.Sender)
		}

		parent := rec.Justification[idx]
		if v.trusted[parent] {
			if pos := slices.Index(known, parent); pos >= 0 {
				slices.Reverse(seq)
				return append(slices.Clone(known[:pos+1]), seq...), nil
			}
		}

		seq = append(seq, parent)
		rec = refs[idx]

		next, err := v.retrieveAll(rec.Justification)
		if err != nil {
			return nil, err
		}
		refs = next
	}

	slices.Reverse(seq)

	return seq, nil
}

// extendSequence compares seq with the known history of sender.
// Nothing is appended unless the whole of seq is consistent with it.
func (v *Validator) extendSequence(sender string, hash message.Hash, seq []message.Hash) (bool, error) {
	known := v.sequences[sender]

	if len(known) == 0 {
		v.sequences[sender] = seq
		return true, nil
	}

	index := slices.Index(known, seq[0])
	if index < 0 {
		return false, v.fault(FaultUnknownInitialMessage, sender, hash)
	}

	for i, h := range seq {
		k := index + i
		if k >= len(known) {
			break
		}
		if known[k] != h {
			return false, v.fault(FaultHistoryFork, sender, hash)
		}
	}

	latest := len(seq)+index > len(known)
	if latest {
		v.sequences[sender] = append(known, seq[len(known)-index:]...)
	}

	return latest, nil
}

// fault flags sender and builds the error for kind.
func (v *Validator) fault(kind FaultKind, sender string, hash message.Hash) error {
	v.byzantine[sender] = true
	v.metrics.faults.WithLabelValues(kind.String()).Inc()

	v.log.Warn("byzantine sender", "sender", sender, "kind", kind, "msg", hash.Short())

	return &ByzantineError{Kind: kind, Sender: sender, Hash: hash}
}

// retrieveAll loads the records for hashes in order.
func (v *Validator) retrieveAll(hashes []message.Hash) ([]message.Record, error) {
	refs := make([]message.Record, len(hashes))

	for i, h := range hashes {
		rec, err := v.store.Retrieve(h)
		if err != nil {
			return nil, err
		}
		refs[i] = rec
	}

	return refs, nil
}
