package domain

// Fractional ordering keys. Point insertion never renumbers neighbors;
// repeated midpoint insertion between the same two keys eventually
// exhausts float64 precision, which is a known limitation of the scheme.
// RenumberKeys is the only renumbering operation and is reserved for
// full within-column reorders that already touch every row.

// AppendKey returns the key for a task added to the end of a column
// whose current keys are orders (any order).
func AppendKey(orders []float64) float64 {
	if len(orders) == 0 {
		return 0
	}
	max := orders[0]
	for _, o := range orders[1:] {
		if o > max {
			max = o
		}
	}
	return max + 1
}

// KeyAt returns the key placing a task at visual index i among keys
// already sorted ascending. i is clamped to [0, len(sorted)].
func KeyAt(sorted []float64, i int) float64 {
	n := len(sorted)
	if i < 0 {
		i = 0
	}
	switch {
	case n == 0:
		return 0
	case i == 0:
		return sorted[0] - 1
	case i >= n:
		return sorted[n-1] + 1
	default:
		return (sorted[i-1] + sorted[i]) / 2
	}
}

// RenumberKeys assigns each of n positions its list index as the key.
func RenumberKeys(n int) []float64 {
	keys := make([]float64, n)
	for i := range keys {
		keys[i] = float64(i)
	}
	return keys
}

// OrderKeys extracts columnOrder from tasks already sorted by it.
func OrderKeys(tasks []Task) []float64 {
	keys := make([]float64, len(tasks))
	for i, t := range tasks {
		keys[i] = t.ColumnOrder
	}
	return keys
}
