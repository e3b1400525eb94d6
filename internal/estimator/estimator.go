// Package estimator holds the estimate functions a validator can run over
// the latest messages it knows about.
package estimator

// Vote is one sender's estimate as seen through a message.
type Vote struct {
	Sender   string
	Estimate int64
}

// WeightFunc returns the weight of a sender, 0 when unknown.
type WeightFunc func(sender string) uint64

// Estimator computes an estimate from a set of votes.
// Implementations are pure: the same votes and weights always give the
// same result.
type Estimator interface {
	Estimate(votes []Vote, weight WeightFunc) int64
}

// Contestable is implemented by estimators whose result can be attacked
// by pushing votes towards a single opposing value.
type Contestable interface {
	Estimator

	// Opposite returns the value an adversary would try to force
	// when the current estimate is v.
	Opposite(v int64) int64
}

// Support returns the total weight of votes whose estimate equals value.
func Support(votes []Vote, weight WeightFunc, value int64) uint64 {
	var total uint64
	for _, v := range votes {
		if v.Estimate == value {
			total += weight(v.Sender)
		}
	}
	return total
}
