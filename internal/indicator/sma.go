package indicator

import "gonum.org/v1/gonum/stat"

// SMA returns the simple mean of the trailing period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	return stat.Mean(values[len(values)-period:], nil), true
}
