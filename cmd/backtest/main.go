// cmd/backtest replays the persisted tick dataset from SQLite through the
// decision engine and a fresh simulated wallet, then prints a summary.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=DOGEUSDT --speed=0 --limit=5000
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trading-simv1/config"
	"trading-simv1/internal/decision"
	"trading-simv1/internal/logger"
	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/portfolio"
	"trading-simv1/internal/replay"
	sqlitestore "trading-simv1/internal/store/sqlite"
)

func main() {
	cfg := config.Load()

	symbol := flag.String("symbol", model.DefaultSymbol, "Symbol whose dataset rows are replayed")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	limit := flag.Int("limit", 0, "Most recent rows to replay (0=all)")
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	mode := flag.String("mode", string(model.ModeRun), "Trading mode: run or scan")
	source := flag.String("source", cfg.DecisionSource, "Decision source: rules or model")
	fraction := flag.Float64("fraction", model.DefaultTradeFraction, "Trade fraction")
	flag.Parse()

	log := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	m, err := model.ParseMode(*mode)
	if err != nil {
		log.Error("invalid mode", "error", err)
		os.Exit(2)
	}
	dcfg := decision.DefaultConfig()
	src, ok := decision.ParseSource(*source)
	if !ok {
		log.Error("invalid decision source", "source", *source)
		os.Exit(2)
	}
	dcfg.Source = src
	dcfg.CooldownTicks = cfg.CooldownTicks
	dcfg.MinHold = cfg.MinHold
	dcfg.MomentumThreshold = cfg.MomentumThreshold
	dcfg.MACDDeadband = cfg.MACDDeadband

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	db, err := sqlitestore.Open(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Error("sqlite open failed", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	feed, err := replay.Load(ctx, db, *symbol, *limit, *speed)
	if err != nil {
		log.Error("nothing to replay", "error", err)
		os.Exit(1)
	}

	var predictor *ml.Predictor
	if src == decision.SourceModel {
		predictor = ml.NewPredictor()
		if err := predictor.Load(ctx, db); err != nil {
			log.Warn("no usable model artifact, model decisions will HOLD", "error", err)
		}
	}

	sum, err := replay.Backtest(ctx, feed, replay.BacktestConfig{
		Symbol: *symbol,
		Mode:   m,
		Wallet: portfolio.Config{
			StartingBalance: cfg.StartingBalance,
			Fee:             cfg.Fee,
			TradeFraction:   *fraction,
		},
		Decision:  dcfg,
		Predictor: predictor,
	})
	if err != nil {
		log.Warn("backtest interrupted", "error", err)
	}
	printSummary(log, sum)
}

func printSummary(log *slog.Logger, s replay.Summary) {
	log.Info("backtest complete", "symbol", s.Symbol, "ticks", s.Ticks, "trades", s.Trades,
		"final_equity", s.FinalEquity, "return_pct", s.ReturnPct)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", s.Symbol)
	fmt.Printf("║  Rows replayed:     %-16d ║\n", s.Ticks)
	fmt.Printf("║  Skipped cycles:    %-16d ║\n", s.Skipped)
	fmt.Printf("║  BUY/SELL/HOLD:     %-16s ║\n", fmt.Sprintf("%d/%d/%d",
		s.Actions[model.ActionBuy], s.Actions[model.ActionSell], s.Actions[model.ActionHold]))
	fmt.Printf("║  Trades:            %-16d ║\n", s.Trades)
	fmt.Printf("║  Rejected:          %-16d ║\n", s.Rejected)
	fmt.Printf("║  Start equity:      %-16.2f ║\n", s.StartEquity)
	fmt.Printf("║  Final equity:      %-16.2f ║\n", s.FinalEquity)
	fmt.Printf("║  Realized PnL:      %-16.2f ║\n", s.RealizedPnL)
	fmt.Printf("║  Return %%:          %-16.2f ║\n", s.ReturnPct)
	fmt.Printf("║  Max drawdown %%:    %-16.2f ║\n", s.MaxDrawdownPct)
	fmt.Printf("║  Position open:     %-16v ║\n", s.PositionOpen)
	fmt.Println("╚══════════════════════════════════════╝")
}
