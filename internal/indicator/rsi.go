package indicator

// RSI returns the Relative Strength Index of the trailing deltas.
//
// It averages gains and losses over the k = min(period, n-1) most recent
// deltas. Short histories therefore shrink the window instead of returning
// nothing; this is a simple-average RSI, not Wilder's smoothed variant.
// Requires at least two prices. A zero average loss yields 100.
func RSI(closes []float64, period int) (float64, bool) {
	n := len(closes)
	if n < 2 || period <= 0 {
		return 0, false
	}
	k := min(period, n-1)

	var gain, loss float64
	for i := n - k; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(k)
	avgLoss := loss / float64(k)

	if avgLoss == 0 {
		return 100.0, true
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), true
}
