package model

import "time"

// TradeRecord is one executed (non-skip) simulated trade. Append-only.
type TradeRecord struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	TS                time.Time `json:"timestamp"`
	Action            Action    `json:"action"`
	Qty               float64   `json:"qty"`
	Price             float64   `json:"price"`
	Fee               float64   `json:"fee"`
	ResultingBalance  float64   `json:"resulting_balance"`
	ResultingPosition float64   `json:"resulting_position"`
	Profit            *float64  `json:"profit,omitempty"` // SELL only
}

// LedgerSummary is what the trade journal knows about the wallet: the most
// recent trade (nil when the journal is empty), the trade count and the sum of
// realized profit.
type LedgerSummary struct {
	Last        *TradeRecord
	Trades      int
	RealizedPnL float64
}

// DatasetRow is one persisted tick with the action taken on it.
// Target and PredictionCorrect are backfilled once the following tick arrives.
type DatasetRow struct {
	ID                int64     `json:"id"`
	Symbol            string    `json:"symbol"`
	TS                time.Time `json:"timestamp"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Close             float64   `json:"close"`
	Volume            float64   `json:"volume"`
	Prediction        Action    `json:"prediction"`
	Target            *bool     `json:"target"`
	PredictionCorrect *bool     `json:"prediction_correct"`
}

// Tick returns the OHLCV part of the row.
func (r DatasetRow) Tick() PriceTick {
	return PriceTick{TS: r.TS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
}
