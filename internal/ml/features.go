// Package ml trains and serves the next-tick direction classifier.
//
// Features are built from the same indicator functions the live decision
// path uses. A fitted StandardScaler and classifier travel together in one
// Artifact, which the Predictor swaps atomically so readers never see a
// scaler paired with a different model.
package ml

import (
	"fmt"

	"trading-simv1/internal/indicator"
	"trading-simv1/internal/model"
)

// FeatureOrder is the column order of every feature row.
var FeatureOrder = []string{
	"open", "high", "low", "close", "volume",
	"delta", "vol_delta", "ma5", "ma10", "ema9",
	"rsi", "macd", "macd_signal", "macd_hist", "bb_pct", "atr",
}

// emaWindow bounds the trailing window used for ema9.
const emaWindow = 27

// Row is one feature vector. Missing lists the features that were not
// computable; a row with missing features is never scored or trained on.
type Row struct {
	Values  []float64
	Missing []string
}

// Complete reports whether every feature is present.
func (r Row) Complete() bool { return len(r.Missing) == 0 && len(r.Values) == len(FeatureOrder) }

// BuildRow computes the feature row for the last tick in ticks.
func BuildRow(ticks []model.PriceTick) Row {
	return buildRow(ticks, indicator.DefaultParams())
}

func buildRow(ticks []model.PriceTick, p indicator.Params) Row {
	n := len(ticks)
	row := Row{Values: make([]float64, len(FeatureOrder))}
	if n == 0 {
		row.Missing = append(row.Missing, FeatureOrder...)
		return row
	}

	last := ticks[n-1]
	closes := make([]float64, 0, emaWindow)
	for _, t := range ticks[max(0, n-emaWindow):] {
		closes = append(closes, t.Close)
	}

	set := func(i int, v *float64) {
		if v != nil {
			row.Values[i] = *v
		} else {
			row.Missing = append(row.Missing, FeatureOrder[i])
		}
	}

	set(0, model.Float(last.Open))
	set(1, model.Float(last.High))
	set(2, model.Float(last.Low))
	set(3, model.Float(last.Close))
	set(4, model.Float(last.Volume))
	if n >= 2 {
		prev := ticks[n-2]
		set(5, model.Float(last.Close-prev.Close))
		set(6, model.Float(last.Volume-prev.Volume))
	} else {
		set(5, nil)
		set(6, nil)
	}
	set(7, opt(indicator.SMA(closes, 5)))
	set(8, opt(indicator.SMA(closes, 10)))
	set(9, opt(indicator.EMA(closes, 9)))

	snap := p.Compute(ticks)
	set(10, snap.RSI)
	set(11, snap.MACD)
	set(12, snap.MACDSignal)
	set(13, snap.MACDHist)
	set(14, snap.BollingerPct)
	set(15, snap.ATR)
	return row
}

func opt(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// Examples is a labelled training table.
type Examples struct {
	X [][]float64
	Y []bool
}

// Len returns the number of examples.
func (e Examples) Len() int { return len(e.Y) }

// BuildExamples labels each tick with whether the next close is higher.
// The last tick has no label and rows with missing features are dropped.
func BuildExamples(ticks []model.PriceTick) Examples {
	p := indicator.DefaultParams()
	var ex Examples
	for i := 0; i+1 < len(ticks); i++ {
		row := buildRow(ticks[:i+1], p)
		if !row.Complete() {
			continue
		}
		ex.X = append(ex.X, row.Values)
		ex.Y = append(ex.Y, ticks[i+1].Close > ticks[i].Close)
	}
	return ex
}

func checkWidth(x []float64, want int) error {
	if len(x) != want {
		return fmt.Errorf("%w: row has %d features, want %d", model.ErrArtifactCorrupt, len(x), want)
	}
	return nil
}
