// Package portfolio simulates a single-position spot wallet.
//
// Ledger arithmetic is done in exact decimals and exposed as float64 in
// snapshots and trade records. Only one position may be open at a time.
// Rejected trades are reported as SKIP results, never as errors.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-simv1/internal/model"
)

// Outcome is what Execute did with an action.
type Outcome string

const (
	OutcomeBuy  Outcome = "BUY"
	OutcomeSell Outcome = "SELL"
	OutcomeSkip Outcome = "SKIP" // trade rejected, wallet untouched
	OutcomeHold Outcome = "HOLD" // non-trading action
)

// Result reports the effect of one Execute call.
type Result struct {
	Outcome Outcome
	Trade   *model.TradeRecord
	Reason  string
}

// Config holds the wallet's starting parameters.
type Config struct {
	StartingBalance float64
	Fee             float64 // fraction per side, 0.001 = 0.1%
	TradeFraction   float64
}

// DefaultConfig returns a 10000 balance, 0.1% fee and a 0.25 trade fraction.
func DefaultConfig() Config {
	return Config{
		StartingBalance: 10000,
		Fee:             0.001,
		TradeFraction:   model.DefaultTradeFraction,
	}
}

// Wallet tracks balance, the open position and the trade history.
type Wallet struct {
	mu sync.RWMutex

	symbol   string
	balance  decimal.Decimal
	qty      decimal.Decimal
	avgEntry decimal.Decimal
	realized decimal.Decimal
	fee      decimal.Decimal
	fraction float64

	trades   []model.TradeRecord
	restored int // trades journaled before a restart
	sink     model.TradeSink
	log      *slog.Logger
}

// ErrInvalidLedger means a journaled trade cannot describe a wallet.
var ErrInvalidLedger = errors.New("invalid ledger")

// NewWallet creates a flat wallet. sink may be nil.
func NewWallet(cfg Config, sink model.TradeSink) *Wallet {
	if cfg.StartingBalance < 0 {
		cfg.StartingBalance = 0
	}
	if cfg.Fee < 0 || cfg.Fee >= 1 {
		cfg.Fee = DefaultConfig().Fee
	}
	return &Wallet{
		symbol:   model.DefaultSymbol,
		balance:  decimal.NewFromFloat(cfg.StartingBalance),
		fee:      decimal.NewFromFloat(cfg.Fee),
		fraction: model.ClampFraction(cfg.TradeFraction),
		trades:   make([]model.TradeRecord, 0, 256),
		sink:     sink,
		log:      slog.With("component", "wallet"),
	}
}

// SetSymbol sets the symbol stamped on subsequent trade records.
func (w *Wallet) SetSymbol(symbol string) {
	w.mu.Lock()
	w.symbol = symbol
	w.mu.Unlock()
}

// Symbol returns the symbol stamped on trade records.
func (w *Wallet) Symbol() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.symbol
}

// Restore resumes from the trade journal: balance and position come from the
// last trade's resulting values and, when a position is open, the entry price
// is that BUY's fill price (only one position may be open, so one BUY opened
// it). An empty journal leaves the wallet untouched.
func (w *Wallet) Restore(sum model.LedgerSummary) error {
	last := sum.Last
	if last == nil {
		return nil
	}
	if last.ResultingBalance < 0 || last.ResultingPosition < 0 {
		return fmt.Errorf("%w: trade %s has negative balance or position", ErrInvalidLedger, last.ID)
	}
	if last.ResultingPosition > 0 && (last.Action != model.ActionBuy || last.Price <= 0) {
		return fmt.Errorf("%w: open position after %s trade %s", ErrInvalidLedger, last.Action, last.ID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = decimal.NewFromFloat(last.ResultingBalance)
	w.qty = decimal.NewFromFloat(last.ResultingPosition)
	w.avgEntry = decimal.Zero
	if w.qty.IsPositive() {
		w.avgEntry = decimal.NewFromFloat(last.Price)
	}
	w.realized = decimal.NewFromFloat(sum.RealizedPnL)
	if last.Symbol != "" {
		w.symbol = last.Symbol
	}
	w.restored = max(sum.Trades-len(w.trades), 0)
	return nil
}

// SetTradeFraction clamps f to [0.05, 0.5] and returns the value applied.
func (w *Wallet) SetTradeFraction(f float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fraction = model.ClampFraction(f)
	return w.fraction
}

// PositionOpen reports whether a position is held.
func (w *Wallet) PositionOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.qty.IsPositive()
}

// Equity returns balance + position_qty × price. It never mutates state.
func (w *Wallet) Equity(price float64) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.equityLocked(price).InexactFloat64()
}

func (w *Wallet) equityLocked(price float64) decimal.Decimal {
	return w.balance.Add(w.qty.Mul(decimal.NewFromFloat(price)))
}

// Snapshot returns the read-only wallet view marked at price.
func (w *Wallet) Snapshot(price float64) model.WalletSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return model.WalletSnapshot{
		Balance:       w.balance.InexactFloat64(),
		PositionQty:   w.qty.InexactFloat64(),
		AvgEntryPrice: w.avgEntry.InexactFloat64(),
		Equity:        w.equityLocked(price).InexactFloat64(),
		TradeFraction: w.fraction,
		RealizedPnL:   w.realized.InexactFloat64(),
		Trades:        w.restored + len(w.trades),
	}
}

// Trades returns a copy of the trade history, oldest first.
func (w *Wallet) Trades() []model.TradeRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]model.TradeRecord, len(w.trades))
	copy(cp, w.trades)
	return cp
}

// Execute applies an action at price. HOLD and SCAN are no-ops.
func (w *Wallet) Execute(ctx context.Context, action model.Action, price float64, ts time.Time) Result {
	var res Result
	switch action {
	case model.ActionBuy:
		res = w.Buy(price, ts)
	case model.ActionSell:
		res = w.Sell(price, ts)
	default:
		return Result{Outcome: OutcomeHold}
	}

	if res.Outcome == OutcomeSkip {
		w.log.Info("trade rejected", "action", action, "price", price, "reason", res.Reason)
		return res
	}
	if w.sink != nil {
		if err := w.sink.RecordTrade(ctx, *res.Trade); err != nil {
			w.log.Warn("trade journal write failed", "id", res.Trade.ID, "error", err)
		}
	}
	return res
}

// Buy spends balance × trade_fraction at price.
func (w *Wallet) Buy(price float64, ts time.Time) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.qty.IsPositive() {
		return Result{Outcome: OutcomeSkip, Reason: "position already open"}
	}
	if price <= 0 {
		return Result{Outcome: OutcomeSkip, Reason: "non-positive price"}
	}
	usd := w.balance.Mul(decimal.NewFromFloat(w.fraction))
	if !usd.IsPositive() {
		return Result{Outcome: OutcomeSkip, Reason: "no spendable balance"}
	}

	px := decimal.NewFromFloat(price)
	fee := usd.Mul(w.fee)
	qty := usd.Sub(fee).Div(px)

	// Volume-weighted entry; the position is always flat here but the
	// formula stays general.
	totalQty := w.qty.Add(qty)
	w.avgEntry = w.avgEntry.Mul(w.qty).Add(px.Mul(qty)).Div(totalQty)
	w.qty = totalQty
	w.balance = w.balance.Sub(usd)

	tr := w.recordLocked(model.ActionBuy, qty, px, fee, ts, nil)
	return Result{Outcome: OutcomeBuy, Trade: &tr}
}

// Sell closes the whole position at price.
func (w *Wallet) Sell(price float64, ts time.Time) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.qty.IsPositive() {
		return Result{Outcome: OutcomeSkip, Reason: "no position"}
	}
	if price <= 0 {
		return Result{Outcome: OutcomeSkip, Reason: "non-positive price"}
	}

	px := decimal.NewFromFloat(price)
	qty := w.qty
	gross := qty.Mul(px)
	fee := gross.Mul(w.fee)
	profit := px.Sub(w.avgEntry).Mul(qty)

	w.balance = w.balance.Add(gross.Sub(fee))
	w.realized = w.realized.Add(profit)
	w.qty = decimal.Zero
	w.avgEntry = decimal.Zero

	p := profit.InexactFloat64()
	tr := w.recordLocked(model.ActionSell, qty, px, fee, ts, &p)
	return Result{Outcome: OutcomeSell, Trade: &tr}
}

func (w *Wallet) recordLocked(action model.Action, qty, px, fee decimal.Decimal, ts time.Time, profit *float64) model.TradeRecord {
	tr := model.TradeRecord{
		ID:                uuid.NewString(),
		Symbol:            w.symbol,
		TS:                ts,
		Action:            action,
		Qty:               qty.InexactFloat64(),
		Price:             px.InexactFloat64(),
		Fee:               fee.InexactFloat64(),
		ResultingBalance:  w.balance.InexactFloat64(),
		ResultingPosition: w.qty.InexactFloat64(),
		Profit:            profit,
	}
	w.trades = append(w.trades, tr)
	return tr
}
