package indicator

// MACDValue is the MACD line with its signal line and histogram.
// Signal and Hist are only meaningful when SignalReady is true.
type MACDValue struct {
	Line        float64
	Signal      float64
	Hist        float64
	SignalReady bool
}

// macdLookback is the number of trailing prices needed for a full signal window.
func macdLookback(slow, signal int) int {
	return 2*slow + signal - 1
}

// macdAt computes EMA(fast) - EMA(slow) over the slow-length window ending at end (exclusive).
func macdAt(closes []float64, end, fast, slow int) float64 {
	window := closes[end-slow : end]
	f, _ := EMA(window, fast)
	s, _ := EMA(window, slow)
	return f - s
}

// MACD computes the MACD line over the trailing slow-length window.
//
// The signal line is EMA(signal) over the MACD values recomputed at each of
// the trailing min(n-slow+1, slow+signal) positions. It stays unready until at
// least signal such values exist. Requires n >= slow for the line.
func MACD(closes []float64, fast, slow, signal int) (MACDValue, bool) {
	n := len(closes)
	if fast <= 0 || slow <= 0 || fast > slow || n < slow {
		return MACDValue{}, false
	}

	out := MACDValue{Line: macdAt(closes, n, fast, slow)}

	count := min(n-slow+1, slow+signal)
	if signal <= 0 || count < signal {
		return out, true
	}
	series := make([]float64, count)
	for i := 0; i < count; i++ {
		series[i] = macdAt(closes, n-count+1+i, fast, slow)
	}
	sig, _ := EMA(series, signal)

	out.Signal = sig
	out.Hist = out.Line - sig
	out.SignalReady = true
	return out, true
}
