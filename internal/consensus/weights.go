package consensus

// weightTable holds the known validators and their weights in
// registration order. Access is serialised by the owning Validator.
type weightTable struct {
	names   []string
	weights map[string]uint64
}

func newWeightTable() *weightTable {
	return &weightTable{weights: make(map[string]uint64)}
}

// set registers name or overwrites its weight.
// Returns true if name was not known before.
func (wt *weightTable) set(name string, weight uint64) bool {
	_, exists := wt.weights[name]
	wt.weights[name] = weight

	if !exists {
		wt.names = append(wt.names, name)
	}

	return !exists
}

// weight returns the weight of name, 0 if unknown.
func (wt *weightTable) weight(name string) uint64 {
	return wt.weights[name]
}

// sum returns the total weight of all known validators.
func (wt *weightTable) sum() uint64 {
	var total uint64
	for _, w := range wt.weights {
		total += w
	}
	return total
}

// list returns a copy of the names in registration order.
func (wt *weightTable) list() []string {
	result := make([]string, len(wt.names))
	copy(result, wt.names)
	return result
}
