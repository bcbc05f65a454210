// Package trader runs the ingestion loop: one fetch → indicators → decision →
// simulated execution → publish cycle per interval, with the periodic model
// retrain folded into the same goroutine.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"trading-simv1/internal/decision"
	"trading-simv1/internal/indicator"
	"trading-simv1/internal/logger"
	"trading-simv1/internal/metrics"
	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/notification"
	"trading-simv1/internal/portfolio"
	"trading-simv1/internal/ringbuf"
	"trading-simv1/internal/state"
)

// Skip reasons reported in CycleResult.Reason.
const (
	ReasonStatus   = "status_unavailable"
	ReasonInactive = "inactive"
	ReasonModeOff  = "mode_off"
	ReasonPrice    = "price_unavailable"
	ReasonPanic    = "panic"
)

const (
	MinInterval = time.Second
	MaxInterval = 10 * time.Second
)

// Config holds the loop timing and buffer sizing.
type Config struct {
	Interval       time.Duration
	FetchTimeout   time.Duration
	BufferCapacity int
	Indicators     indicator.Params
}

// DefaultConfig ticks every second with a 2.5s fetch timeout and a 600-tick buffer.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		FetchTimeout:   2500 * time.Millisecond,
		BufferCapacity: 600,
		Indicators:     indicator.DefaultParams(),
	}
}

// TrainingFlag records whether a retrain is running (status.Service does).
type TrainingFlag interface {
	SetTraining(ctx context.Context, training bool) (model.Status, error)
}

// Deps are the collaborators the runner drives. Feed, Status, Wallet, Engine
// and State are required; the rest may be nil.
type Deps struct {
	Feed      model.PriceFeed
	Status    model.StatusSource
	Training  TrainingFlag
	Dataset   model.DatasetWriter
	Accuracy  model.AccuracySource
	Publisher model.LatestPublisher
	Wallet    *portfolio.Wallet
	Engine    *decision.Engine
	Trainer   *ml.Trainer
	Predictor *ml.Predictor
	State     *state.Store
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Notifier  notification.Notifier
	Recent    *logger.Recent
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Skipped   bool
	Reason    string
	Symbol    string
	Tick      model.PriceTick
	Decision  decision.Decision
	Execution portfolio.Result
	Retrained bool
}

// Runner owns the tick buffer and drives the decision engine and wallet.
// Cycle and Run must be called from a single goroutine; Retrain may be
// called concurrently.
type Runner struct {
	cfg      Config
	deps     Deps
	buf      *ringbuf.Ring
	drawdown portfolio.DrawdownTracker
	symbol   string
	log      *slog.Logger
	now      func() time.Time
}

// New validates the dependencies and builds a runner.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.Feed == nil || deps.Status == nil || deps.Wallet == nil || deps.Engine == nil || deps.State == nil {
		return nil, fmt.Errorf("%w: trader needs a feed, status source, wallet, engine and state store", model.ErrInvalidConfiguration)
	}
	cfg.Interval = max(MinInterval, min(cfg.Interval, MaxInterval))
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultConfig().BufferCapacity
	}
	if cfg.Indicators == (indicator.Params{}) {
		cfg.Indicators = indicator.DefaultParams()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier()
	}

	r := &Runner{
		cfg:  cfg,
		deps: deps,
		buf:  ringbuf.New(cfg.BufferCapacity),
		log:  slog.With("component", "trader"),
		now:  time.Now,
	}
	if deps.Trainer != nil && deps.Training != nil {
		deps.Trainer.OnRunning(r.setTraining)
	}
	if deps.Wallet.PositionOpen() {
		// A position restored from the journal belongs to the wallet's symbol.
		r.symbol = deps.Wallet.Symbol()
	}
	deps.State.SetWallet(deps.Wallet.Snapshot(0))
	return r, nil
}

// Symbol returns the symbol the buffer currently holds ticks for.
func (r *Runner) Symbol() string { return r.symbol }

// Drawdown reports peak equity and drawdown observed across published cycles.
func (r *Runner) Drawdown() portfolio.DrawdownStatus { return r.drawdown.Status() }

// Buffered returns the number of ticks in the buffer.
func (r *Runner) Buffered() int { return r.buf.Len() }

// SetClock replaces the wall clock used to stamp ticks. Replays use it to
// keep historical timestamps so min-hold is measured in market time.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. A panicking cycle is logged and the loop continues.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("trader loop started", "interval", r.cfg.Interval, "fetch_timeout", r.cfg.FetchTimeout)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.SafeCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("trader loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.SafeCycle(ctx)
		}
	}
}

// SafeCycle runs Cycle and converts a panic into a skipped result.
func (r *Runner) SafeCycle(ctx context.Context) (res CycleResult) {
	defer func() {
		if p := recover(); p != nil {
			r.deps.Metrics.CyclePanics.Inc()
			r.log.Error("cycle panicked", "panic", p, "stack", string(debug.Stack()))
			res = CycleResult{Skipped: true, Reason: ReasonPanic, Symbol: r.symbol}
		}
	}()
	return r.Cycle(ctx)
}

// Cycle performs one ingestion step. Skipped cycles leave the buffer,
// decision state and wallet untouched.
func (r *Runner) Cycle(ctx context.Context) CycleResult {
	start := r.now()
	defer r.deps.Metrics.ObserveCycle(start)

	st, err := r.deps.Status.Load(ctx)
	if err != nil {
		r.log.Warn("status load failed", "error", err)
		return r.skip(ReasonStatus)
	}
	r.deps.State.SetStatus(st)

	if st.Symbol != r.symbol {
		r.switchSymbol(ctx, st.Symbol)
	}
	r.deps.Wallet.SetTradeFraction(st.TradeFraction)
	if !st.Active {
		return r.skip(ReasonInactive)
	}
	if st.Mode == model.ModeOff {
		return r.skip(ReasonModeOff)
	}

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(r.symbol, start))
	price, err := r.fetch(ctx, r.symbol)
	if err != nil {
		r.log.Warn("cycle skipped", append(logger.LogWithTrace(ctx), "reason", ReasonPrice, "error", err)...)
		return r.skip(ReasonPrice)
	}

	tick := model.QuoteTick(start, price)
	r.buf.Append(tick)
	r.deps.Metrics.TicksTotal.Inc()
	r.deps.Health.SetLastTickTime(start)

	ticks := r.buf.Snapshot()
	ind := r.cfg.Indicators.Compute(ticks)

	prediction := model.ActionHold
	if r.deps.Predictor != nil {
		prediction = r.deps.Predictor.PredictTicks(ticks)
		r.deps.Health.SetModelReady(r.deps.Predictor.Ready())
	}

	d := r.deps.Engine.Evaluate(decision.Input{
		Now:          start,
		Price:        price,
		Indicators:   ind,
		Mode:         st.Mode,
		PositionOpen: r.deps.Wallet.PositionOpen(),
		Prediction:   prediction,
	})
	r.deps.Metrics.ActionsTotal.WithLabelValues(string(d.Action)).Inc()

	res := CycleResult{Symbol: r.symbol, Tick: tick, Decision: d}
	if st.Mode == model.ModeRun && d.Action.IsTrade() {
		res.Execution = r.execute(ctx, d.Action, price, start)
	}

	r.appendRow(ctx, tick, d.Action)
	res.Retrained = r.maybeRetrain(ctx)

	snap := model.LatestSnapshot{
		Symbol:     r.symbol,
		TS:         tick.TS,
		Open:       tick.Open,
		High:       tick.High,
		Low:        tick.Low,
		Close:      tick.Close,
		Volume:     tick.Volume,
		Indicators: ind,
		LastAction: d.Action,
		Mode:       st.Mode,
		Cooldown:   d.Cooldown,
		Accuracy:   r.accuracy(ctx),
	}
	if r.deps.Predictor != nil {
		snap.ModelPrediction = prediction
	}
	r.publish(ctx, snap, price)

	r.recordActivity(start, d.Action, price, d.Reason)
	r.log.Debug("cycle complete", append(logger.LogWithTrace(ctx),
		"price", price, "action", d.Action, "candidate", d.Candidate, "reason", d.Reason)...)
	return res
}

// skip keeps the published wallet current (fraction changes, a liquidation on
// symbol switch) even though no tick was taken.
func (r *Runner) skip(reason string) CycleResult {
	r.deps.Metrics.SkippedCycles.WithLabelValues(reason).Inc()
	r.deps.Health.SetSkipped(reason)
	r.deps.State.SetWallet(r.deps.Wallet.Snapshot(r.markPrice()))
	return CycleResult{Skipped: true, Reason: reason, Symbol: r.symbol}
}

func (r *Runner) recordActivity(ts time.Time, action model.Action, price float64, detail string) {
	if r.deps.Recent != nil {
		r.deps.Recent.Add(logger.ActivityLine(ts, r.symbol, string(action), price, detail))
	}
}

// markPrice is the last buffered close, or 0 before the first tick.
func (r *Runner) markPrice() float64 {
	if last, ok := r.buf.Last(); ok {
		return last.Close
	}
	return 0
}

func (r *Runner) fetch(ctx context.Context, symbol string) (float64, error) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	price, err := r.deps.Feed.FetchPrice(fctx, symbol)
	if err != nil {
		if !errors.Is(err, model.ErrPriceUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrPriceUnavailable, err)
		}
		return 0, err
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: non-positive price %v", model.ErrPriceUnavailable, price)
	}
	return price, nil
}

func (r *Runner) execute(ctx context.Context, action model.Action, price float64, ts time.Time) portfolio.Result {
	res := r.deps.Wallet.Execute(ctx, action, price, ts)
	switch res.Outcome {
	case portfolio.OutcomeBuy, portfolio.OutcomeSell:
		r.deps.Metrics.TradesTotal.WithLabelValues(string(res.Outcome)).Inc()
	case portfolio.OutcomeSkip:
		r.deps.Metrics.RejectedTotal.Inc()
	}
	return res
}

// switchSymbol closes any open position at the old symbol's last price and
// starts the new symbol from an empty buffer and a fresh decision state.
func (r *Runner) switchSymbol(ctx context.Context, next string) {
	prev := r.symbol
	if prev != "" && r.deps.Wallet.PositionOpen() {
		price := r.liquidationPrice(ctx, prev)
		res := r.execute(ctx, model.ActionSell, price, r.now())
		r.log.Warn("symbol changed with an open position, liquidated",
			"from", prev, "to", next, "price", price, "outcome", res.Outcome)
		r.deps.State.SetWallet(r.deps.Wallet.Snapshot(price))
		r.recordActivity(r.now(), model.ActionSell, price, "liquidated on symbol change")
	}
	r.buf.Reset()
	r.deps.Engine.Reset()
	r.deps.Wallet.SetSymbol(next)
	r.symbol = next
	if prev != "" {
		r.log.Info("symbol changed", "from", prev, "to", next)
	}
}

// liquidationPrice prefers the last buffered close. With an empty buffer (a
// position restored at startup) it asks the feed, and falls back to the entry
// price so the position is closed flat rather than kept under the wrong symbol.
func (r *Runner) liquidationPrice(ctx context.Context, symbol string) float64 {
	if last, ok := r.buf.Last(); ok {
		return last.Close
	}
	price, err := r.fetch(ctx, symbol)
	if err == nil {
		return price
	}
	entry := r.deps.Wallet.Snapshot(0).AvgEntryPrice
	r.log.Warn("no price for liquidation, closing at entry", "symbol", symbol, "entry", entry, "error", err)
	return entry
}

func (r *Runner) appendRow(ctx context.Context, tick model.PriceTick, action model.Action) {
	if r.deps.Dataset == nil {
		return
	}
	row := model.DatasetRow{
		Symbol:     r.symbol,
		TS:         tick.TS,
		Open:       tick.Open,
		High:       tick.High,
		Low:        tick.Low,
		Close:      tick.Close,
		Volume:     tick.Volume,
		Prediction: action,
	}
	if err := r.deps.Dataset.AppendRow(ctx, row); err != nil {
		r.log.Error("dataset append failed", append(logger.LogWithTrace(ctx), "error", err)...)
		return
	}
	if r.deps.Trainer != nil {
		r.deps.Trainer.Observe()
	}
}

func (r *Runner) maybeRetrain(ctx context.Context) bool {
	if r.deps.Trainer == nil || !r.deps.Trainer.Due() {
		return false
	}
	art, err := r.train(ctx, r.symbol, r.deps.Trainer.MaybeTrain)
	return err == nil && art != nil
}

// Retrain trains immediately on the current symbol's history. It fails with
// ml.ErrTrainingInFlight while another retrain runs.
func (r *Runner) Retrain(ctx context.Context) (*ml.Artifact, error) {
	if r.deps.Trainer == nil {
		return nil, fmt.Errorf("%w: model training is disabled", model.ErrInvalidConfiguration)
	}
	symbol := r.deps.State.Status().Symbol
	return r.train(ctx, symbol, r.deps.Trainer.Train)
}

func (r *Runner) train(ctx context.Context, symbol string, fn func(context.Context, string) (*ml.Artifact, error)) (*ml.Artifact, error) {
	start := time.Now()
	art, err := fn(ctx, symbol)
	elapsed := time.Since(start)
	switch {
	case err == nil && art == nil:
		// not due
	case err == nil:
		r.deps.Metrics.ObserveRetrain("ok", elapsed)
		r.deps.Health.SetModelReady(true)
	case errors.Is(err, ml.ErrTrainingInFlight):
		r.deps.Metrics.ObserveRetrain("skipped", elapsed)
		r.log.Info("retrain skipped", "reason", "in flight")
	case errors.Is(err, model.ErrInsufficientHistory):
		r.deps.Metrics.ObserveRetrain("insufficient", elapsed)
		r.log.Info("retrain skipped", "symbol", symbol, "reason", err)
	default:
		r.deps.Metrics.ObserveRetrain("error", elapsed)
		r.log.Error("retrain failed", "symbol", symbol, "error", err)
		if nerr := r.deps.Notifier.Send(ctx, notification.RetrainFailedAlert(symbol, err)); nerr != nil {
			r.log.Warn("retrain alert not delivered", "error", nerr)
		}
	}
	return art, err
}

func (r *Runner) setTraining(running bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.deps.Training.SetTraining(ctx, running); err != nil {
		r.log.Warn("training flag not saved", "training", running, "error", err)
	}
}

func (r *Runner) accuracy(ctx context.Context) *float64 {
	if r.deps.Accuracy == nil {
		return nil
	}
	acc, ok, err := r.deps.Accuracy.Accuracy(ctx, r.symbol)
	if err != nil {
		r.log.Debug("accuracy unavailable", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return model.Float(acc)
}

func (r *Runner) publish(ctx context.Context, snap model.LatestSnapshot, price float64) {
	wallet := r.deps.Wallet.Snapshot(price)
	r.deps.State.Publish(snap, wallet)

	dd := r.drawdown.Observe(wallet.Equity)
	r.deps.Metrics.Equity.Set(wallet.Equity)
	r.deps.Metrics.Balance.Set(wallet.Balance)
	r.deps.Metrics.Drawdown.Set(dd)

	if r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.PublishLatest(ctx, snap); err != nil {
		r.deps.Metrics.PublishErrs.Inc()
		r.log.Warn("latest publish failed", append(logger.LogWithTrace(ctx), "error", err)...)
	}
}
