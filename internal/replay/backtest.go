package replay

import (
	"context"

	"trading-simv1/internal/decision"
	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/portfolio"
	"trading-simv1/internal/state"
	"trading-simv1/internal/status"
	"trading-simv1/internal/trader"
)

// BacktestConfig configures one replay through the trader.
type BacktestConfig struct {
	Symbol   string
	Mode     model.Mode // run trades, scan only decides
	Wallet   portfolio.Config
	Decision decision.Config
	// Predictor is optional; required for the model decision source to act.
	Predictor *ml.Predictor
}

// Summary is the outcome of a backtest.
type Summary struct {
	Symbol         string
	Rows           int
	Ticks          int
	Skipped        int
	Actions        map[model.Action]int
	Trades         int
	Rejected       int
	StartEquity    float64
	FinalEquity    float64
	RealizedPnL    float64
	ReturnPct      float64
	MaxDrawdownPct float64
	PositionOpen   bool
	LastPrice      float64
}

// Backtest drives every row of feed through a fresh wallet and decision
// engine. Nothing is persisted and the model is never retrained.
func Backtest(ctx context.Context, feed *Feed, cfg BacktestConfig) (Summary, error) {
	if cfg.Mode == "" {
		cfg.Mode = model.ModeRun
	}
	st := model.Status{
		Active:        true,
		Mode:          cfg.Mode,
		Symbol:        cfg.Symbol,
		TradeFraction: cfg.Wallet.TradeFraction,
	}.Normalize()

	wallet := portfolio.NewWallet(cfg.Wallet, nil)
	runner, err := trader.New(trader.DefaultConfig(), trader.Deps{
		Feed:      feed,
		Status:    status.NewMemoryStore(&st),
		Wallet:    wallet,
		Engine:    decision.NewEngine(cfg.Decision),
		Predictor: cfg.Predictor,
		State:     state.New(),
	})
	if err != nil {
		return Summary{}, err
	}
	runner.SetClock(feed.Now)

	sum := Summary{
		Symbol:      st.Symbol,
		Rows:        feed.Len(),
		Actions:     make(map[model.Action]int),
		StartEquity: wallet.Equity(0),
	}
	for feed.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := runner.SafeCycle(ctx)
		if res.Skipped {
			sum.Skipped++
			continue
		}
		sum.Ticks++
		sum.LastPrice = res.Tick.Close
		sum.Actions[res.Decision.Action]++
		switch res.Execution.Outcome {
		case portfolio.OutcomeBuy, portfolio.OutcomeSell:
			sum.Trades++
		case portfolio.OutcomeSkip:
			sum.Rejected++
		}
	}

	snap := wallet.Snapshot(sum.LastPrice)
	sum.FinalEquity = snap.Equity
	sum.RealizedPnL = snap.RealizedPnL
	sum.PositionOpen = snap.PositionQty > 0
	sum.MaxDrawdownPct = runner.Drawdown().MaxDrawdownPct
	if sum.StartEquity > 0 {
		sum.ReturnPct = (sum.FinalEquity - sum.StartEquity) / sum.StartEquity * 100
	}
	return sum, nil
}
