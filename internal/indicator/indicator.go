// Package indicator provides technical indicator calculations over a price
// sequence ordered oldest first.
//
// Every function is pure: it reads only the trailing window it needs and
// returns ok=false instead of a numeric stand-in when history is too short.
// Compute bundles them into a model.IndicatorSnapshot with nil fields for the
// indicators that are not ready.
package indicator

import "trading-simv1/internal/model"

// Params holds the indicator periods.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BollPeriod int
	BollK      float64
	ATRPeriod  int
}

// DefaultParams returns RSI(14), MACD(12,26,9), Bollinger(20,2), ATR(14).
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BollPeriod: 20,
		BollK:      2,
		ATRPeriod:  14,
	}
}

// lookback is the longest trailing window any indicator reads.
func (p Params) lookback() int {
	n := macdLookback(p.MACDSlow, p.MACDSignal)
	n = max(n, p.RSIPeriod+1, p.BollPeriod, p.ATRPeriod+1)
	return n
}

// Compute evaluates every indicator with the default parameters.
func Compute(ticks []model.PriceTick) model.IndicatorSnapshot {
	return DefaultParams().Compute(ticks)
}

// Compute evaluates every indicator over the trailing ticks.
// An empty input yields a snapshot with every field nil.
func (p Params) Compute(ticks []model.PriceTick) model.IndicatorSnapshot {
	var snap model.IndicatorSnapshot
	if len(ticks) == 0 {
		return snap
	}
	if lb := p.lookback(); len(ticks) > lb {
		ticks = ticks[len(ticks)-lb:]
	}

	closes := make([]float64, len(ticks))
	for i, t := range ticks {
		closes[i] = t.Close
	}

	if v, ok := RSI(closes, p.RSIPeriod); ok {
		snap.RSI = model.Float(v)
	}
	if m, ok := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); ok {
		snap.MACD = model.Float(m.Line)
		if m.SignalReady {
			snap.MACDSignal = model.Float(m.Signal)
			snap.MACDHist = model.Float(m.Hist)
		}
	}
	if v, ok := BollingerPctB(closes, p.BollPeriod, p.BollK); ok {
		snap.BollingerPct = model.Float(v)
	}
	if v, ok := ATR(ticks, p.ATRPeriod); ok {
		snap.ATR = model.Float(v)
	}
	return snap
}
