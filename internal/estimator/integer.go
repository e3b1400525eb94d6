package estimator

import "slices"

// Integer elects the weighted median of the voted values. When the
// cumulative weight lands exactly on half, the lower value wins.
type Integer struct{}

// Estimate sorts votes by value and returns the value of the first vote at
// which the running weight reaches half of the total. An empty vote set
// yields 0.
func (Integer) Estimate(votes []Vote, weight WeightFunc) int64 {
	if len(votes) == 0 {
		return 0
	}

	sorted := slices.Clone(votes)
	slices.SortStableFunc(sorted, func(a, b Vote) int {
		switch {
		case a.Estimate < b.Estimate:
			return -1
		case a.Estimate > b.Estimate:
			return 1
		default:
			return 0
		}
	})

	var total uint64
	for _, v := range sorted {
		total += weight(v.Sender)
	}

	var running uint64
	for _, v := range sorted {
		running += weight(v.Sender)
		if running >= total-running {
			return v.Estimate
		}
	}

	return sorted[len(sorted)-1].Estimate
}
