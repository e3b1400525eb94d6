package estimator

// Binary elects 0 or 1 by weighted majority. Ties go to 0.
type Binary struct{}

// Estimate returns 1 iff the weight behind 1 is strictly greater than the
// weight behind 0. Votes for other values are ignored.
func (Binary) Estimate(votes []Vote, weight WeightFunc) int64 {
	var totals [2]uint64

	for _, v := range votes {
		if v.Estimate == 0 || v.Estimate == 1 {
			totals[v.Estimate] += weight(v.Sender)
		}
	}

	if totals[1] > totals[0] {
		return 1
	}
	return 0
}

// Opposite returns 1 - v.
func (Binary) Opposite(v int64) int64 {
	return 1 - v
}
