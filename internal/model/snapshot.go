package model

import (
	"encoding/json"
	"time"
)

// IndicatorSnapshot holds the indicator values derived from the tick buffer.
// A nil field means there was not enough history; it is never a stand-in number.
type IndicatorSnapshot struct {
	RSI          *float64 `json:"rsi"`
	MACD         *float64 `json:"macd"`
	MACDSignal   *float64 `json:"macd_signal"`
	MACDHist     *float64 `json:"macd_hist"`
	BollingerPct *float64 `json:"bollinger_pct"`
	ATR          *float64 `json:"atr"`
}

// Float returns a pointer to v for populating optional fields.
func Float(v float64) *float64 { return &v }

// LatestSnapshot is the read-only view of the most recent cycle served to clients.
type LatestSnapshot struct {
	Symbol          string            `json:"symbol"`
	TS              time.Time         `json:"timestamp"`
	Open            float64           `json:"open"`
	High            float64           `json:"high"`
	Low             float64           `json:"low"`
	Close           float64           `json:"close"`
	Volume          float64           `json:"volume"`
	Indicators      IndicatorSnapshot `json:"indicators"`
	LastAction      Action            `json:"last_action"`
	ModelPrediction Action            `json:"model_prediction,omitempty"`
	Mode            Mode              `json:"mode"`
	Cooldown        int               `json:"cooldown_remaining"`
	Accuracy        *float64          `json:"accuracy"`
}

// JSON returns the JSON-encoded snapshot (ignoring errors, the type always encodes).
func (s *LatestSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// WalletSnapshot is the read-only view of the simulated wallet.
type WalletSnapshot struct {
	Balance       float64 `json:"balance"`
	PositionQty   float64 `json:"position_qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	Equity        float64 `json:"equity"`
	TradeFraction float64 `json:"trade_fraction"`
	RealizedPnL   float64 `json:"realized_pnl"`
	Trades        int     `json:"trades"`
}
