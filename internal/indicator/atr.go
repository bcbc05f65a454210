package indicator

import (
	"math"

	"trading-simv1/internal/model"
)

// ATR is the mean true range over the trailing period ticks.
// TR = max(high-low, |high-prevClose|, |low-prevClose|). Requires period+1 ticks.
// A flat quote stream yields 0, which is a real value and is returned as such.
func ATR(ticks []model.PriceTick, period int) (float64, bool) {
	n := len(ticks)
	if period <= 0 || n < period+1 {
		return 0, false
	}
	var sum float64
	for i := n - period; i < n; i++ {
		sum += trueRange(ticks[i], ticks[i-1].Close)
	}
	return sum / float64(period), true
}

func trueRange(t model.PriceTick, prevClose float64) float64 {
	return max(t.High-t.Low, math.Abs(t.High-prevClose), math.Abs(t.Low-prevClose))
}
