package indicator

import "gonum.org/v1/gonum/stat"

// BollingerPctB returns where the last close sits inside the Bollinger band:
// (close - lower) / (upper - lower), bands at mean ± k·σ over the trailing
// period (population σ). Not defined when the band width is zero.
func BollingerPctB(closes []float64, period int, k float64) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	window := closes[len(closes)-period:]
	mean, std := stat.PopMeanStdDev(window, nil)

	upper := mean + k*std
	lower := mean - k*std
	width := upper - lower
	if width == 0 {
		return 0, false
	}
	return (window[len(window)-1] - lower) / width, true
}
