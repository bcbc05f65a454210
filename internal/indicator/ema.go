package indicator

// EMA computes the Exponential Moving Average of values.
// The running average is seeded with the first element of the window, then
// e = v*k + e*(1-k) with k = 2/(span+1). Requires len(values) >= span.
func EMA(values []float64, span int) (float64, bool) {
	if span <= 0 || len(values) < span {
		return 0, false
	}
	k := 2.0 / float64(span+1)
	e := values[0]
	for _, v := range values[1:] {
		e = v*k + e*(1-k)
	}
	return e, true
}
