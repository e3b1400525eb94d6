package consensus

import (
	"slices"

	"Casper/internal/estimator"
	"Casper/internal/message"
)

// FindSafety returns the share of total weight held by validators whose
// latest message agrees with estimate and cannot be flipped by delivering
// messages they have not seen yet. It is 0 when the total weight is 0.
//
// Estimators that do not implement estimator.Contestable have no attack to
// simulate, so the ratio is the weight of latest messages voting exactly
// for estimate.
//
// Results are memoised until the latest messages or the weights change.
func (v *Validator) FindSafety(estimate int64) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ratio, ok := v.safety[estimate]; ok {
		return ratio, nil
	}

	total := v.weights.sum()
	if total == 0 {
		return 0, nil
	}

	safe, err := v.findSafeValidators(estimate)
	if err != nil {
		return 0, err
	}

	var weight uint64
	for _, s := range safe {
		weight += v.weights.weight(s)
	}

	ratio := float64(weight) / float64(total)
	v.safety[estimate] = ratio

	return ratio, nil
}

// FindSafeValidators returns the senders whose latest message agrees with
// estimate and is not attackable, in the order senders were first seen.
func (v *Validator) FindSafeValidators(estimate int64) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.findSafeValidators(estimate)
}

// IsAttackable reports whether any justification entry of hash has a
// contradicting future message in its sender's known history.
// It is a coarser test than the one FindSafety runs.
func (v *Validator) IsAttackable(hash message.Hash) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.isAttackable(hash)
}

func (v *Validator) findSafeValidators(estimate int64) ([]string, error) {
	contestable, ok := v.estimator.(estimator.Contestable)

	var safe []string
	for _, sender := range v.latestOrder {
		hash := v.latest[sender]

		rec, err := v.store.Retrieve(hash)
		if err != nil {
			return nil, err
		}
		if rec.Estimate != estimate {
			continue
		}

		if ok {
			attackable, err := v.canForceEstimate(contestable.Opposite(estimate), hash)
			if err != nil {
				return nil, err
			}
			if attackable {
				continue
			}
		}

		safe = append(safe, sender)
	}

	return safe, nil
}

// canForceEstimate reports whether an adversary could make the estimator
// return target over the justification of hash. Every cited message is
// replaced by the first later message of its sender with a different
// estimate, if one is known. Weighted validators the message does not cite
// vote with their earliest known message, or with target when none is known.
func (v *Validator) canForceEstimate(target int64, hash message.Hash) (bool, error) {
	rec, err := v.store.Retrieve(hash)
	if err != nil {
		return false, err
	}

	votes := make([]estimator.Vote, 0, len(v.weights.names))
	cited := make(map[string]bool, len(rec.Justification))

	for _, j := range rec.Justification {
		ref, err := v.store.Retrieve(j)
		if err != nil {
			return false, err
		}

		vote := estimator.Vote{Sender: ref.Sender, Estimate: ref.Estimate}

		future, found, err := v.findContradictingFutureMsg(j, v.sequences[ref.Sender])
		if err != nil {
			return false, err
		}
		if found {
			sub, err := v.store.Retrieve(future)
			if err != nil {
				return false, err
			}
			vote.Estimate = sub.Estimate
		}

		votes = append(votes, vote)
		cited[ref.Sender] = true
	}

	for _, name := range v.weights.names {
		if cited[name] {
			continue
		}

		vote := estimator.Vote{Sender: name, Estimate: target}

		if seq := v.sequences[name]; len(seq) > 0 {
			first, err := v.store.Retrieve(seq[0])
			if err != nil {
				return false, err
			}
			vote.Estimate = first.Estimate
		}

		votes = append(votes, vote)
	}

	return v.estimator.Estimate(votes, v.weights.weight) == target, nil
}

func (v *Validator) isAttackable(hash message.Hash) (bool, error) {
	rec, err := v.store.Retrieve(hash)
	if err != nil {
		return false, err
	}

	for _, j := range rec.Justification {
		ref, err := v.store.Retrieve(j)
		if err != nil {
			return false, err
		}

		_, found, err := v.findContradictingFutureMsg(j, v.sequences[ref.Sender])
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}

	return false, nil
}

// findContradictingFutureMsg returns the first hash after hash in seq whose
// estimate differs from the estimate of hash. The search covers all of seq
// when hash is not part of it.
func (v *Validator) findContradictingFutureMsg(hash message.Hash, seq []message.Hash) (message.Hash, bool, error) {
	rec, err := v.store.Retrieve(hash)
	if err != nil {
		return message.Hash{}, false, err
	}

	start := slices.Index(seq, hash) + 1

	for _, h := range seq[start:] {
		future, err := v.store.Retrieve(h)
		if err != nil {
			return message.Hash{}, false, err
		}
		if future.Estimate != rec.Estimate {
			return h, true, nil
		}
	}

	return message.Hash{}, false, nil
}
