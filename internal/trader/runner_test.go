package trader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-simv1/internal/decision"
	"trading-simv1/internal/logger"
	"trading-simv1/internal/metrics"
	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/portfolio"
	"trading-simv1/internal/state"
	"trading-simv1/internal/status"
)

// ── fakes ──

type scriptedFeed struct {
	prices  []float64
	err     error
	calls   int
	panics  bool
	symbols []string
}

func (f *scriptedFeed) FetchPrice(_ context.Context, symbol string) (float64, error) {
	f.calls++
	f.symbols = append(f.symbols, symbol)
	if f.panics {
		panic("feed exploded")
	}
	if f.err != nil {
		return 0, f.err
	}
	if len(f.prices) == 0 {
		return 0, model.ErrPriceUnavailable
	}
	p := f.prices[0]
	f.prices = f.prices[1:]
	return p, nil
}

type memDataset struct {
	rows []model.DatasetRow
}

func (m *memDataset) AppendRow(_ context.Context, row model.DatasetRow) error {
	m.rows = append(m.rows, row)
	return nil
}

func (m *memDataset) History(_ context.Context, symbol string, limit int) ([]model.DatasetRow, error) {
	var out []model.DatasetRow
	for _, r := range m.rows {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	snaps []model.LatestSnapshot
	err   error
}

func (p *recordingPublisher) PublishLatest(_ context.Context, s model.LatestSnapshot) error {
	p.snaps = append(p.snaps, s)
	return p.err
}

type failingStatus struct{}

func (failingStatus) Load(context.Context) (model.Status, error) {
	return model.Status{}, errors.New("disk gone")
}

type flagRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (f *flagRecorder) SetTraining(_ context.Context, v bool) (model.Status, error) {
	f.mu.Lock()
	f.calls = append(f.calls, v)
	f.mu.Unlock()
	return model.Status{Training: v}, nil
}

type harness struct {
	runner  *Runner
	feed    *scriptedFeed
	status  *status.MemoryStore
	wallet  *portfolio.Wallet
	engine  *decision.Engine
	state   *state.Store
	dataset *memDataset
	metrics *metrics.Metrics
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, st model.Status, prices ...float64) *harness {
	t.Helper()
	dcfg := decision.DefaultConfig()
	dcfg.MinHold = 0
	h := &harness{
		feed:    &scriptedFeed{prices: prices},
		status:  status.NewMemoryStore(&st),
		wallet:  portfolio.NewWallet(portfolio.DefaultConfig(), nil),
		engine:  decision.NewEngine(dcfg),
		state:   state.New(),
		dataset: &memDataset{},
		metrics: metrics.NewMetrics(),
	}
	r, err := New(DefaultConfig(), Deps{
		Feed:    h.feed,
		Status:  h.status,
		Dataset: h.dataset,
		Wallet:  h.wallet,
		Engine:  h.engine,
		State:   h.state,
		Metrics: h.metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tick := 0
	r.now = func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	h.runner = r
	return h
}

func runStatus() model.Status {
	st := model.DefaultStatus()
	st.Mode = model.ModeRun
	return st
}

// ── tests ──

func TestNew_RequiresCoreDeps(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); !errors.Is(err, model.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestNew_ClampsInterval(t *testing.T) {
	h := newHarness(t, model.DefaultStatus())
	cfg := DefaultConfig()
	cfg.Interval = time.Minute
	r, err := New(cfg, h.runner.deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.cfg.Interval != MaxInterval {
		t.Errorf("interval = %v, want %v", r.cfg.Interval, MaxInterval)
	}
}

func TestCycle_FailedFetchesSkipWithoutStateChange(t *testing.T) {
	h := newHarness(t, runStatus())
	h.feed.err = errors.New("connection refused")
	walletBefore := h.wallet.Snapshot(1)
	engineBefore := h.engine.State()

	for i := 0; i < 3; i++ {
		res := h.runner.SafeCycle(context.Background())
		if !res.Skipped || res.Reason != ReasonPrice {
			t.Fatalf("cycle %d: got %+v, want price skip", i, res)
		}
	}

	if got := testutil.ToFloat64(h.metrics.SkippedCycles.WithLabelValues(ReasonPrice)); got != 3 {
		t.Errorf("skipped cycles = %v, want 3", got)
	}
	if h.runner.Buffered() != 0 {
		t.Errorf("buffer has %d ticks, want 0", h.runner.Buffered())
	}
	if _, ok := h.state.Latest(); ok {
		t.Error("a skipped cycle published a snapshot")
	}
	if got := h.wallet.Snapshot(1); got != walletBefore {
		t.Errorf("wallet changed: %+v → %+v", walletBefore, got)
	}
	if got := h.engine.State(); got.LastAction != engineBefore.LastAction || got.PrevPrice != engineBefore.PrevPrice || got.CooldownRemaining != 0 {
		t.Errorf("engine state changed: %+v", got)
	}
	if len(h.dataset.rows) != 0 {
		t.Errorf("dataset has %d rows, want 0", len(h.dataset.rows))
	}
}

func TestNew_SeedsWalletSnapshot(t *testing.T) {
	h := newHarness(t, runStatus())
	h.feed.err = errors.New("connection refused")

	w := h.state.Wallet()
	if w.Balance != 10000 || w.Equity != 10000 {
		t.Fatalf("wallet before any cycle = %+v, want balance and equity 10000", w)
	}
	for i := 0; i < 3; i++ {
		h.runner.Cycle(context.Background())
	}
	if w := h.state.Wallet(); w.Balance != 10000 || w.Equity != 10000 || w.TradeFraction != model.DefaultTradeFraction {
		t.Errorf("wallet after failed fetches = %+v", w)
	}
}

func TestCycle_ModeOffRefreshesWalletFraction(t *testing.T) {
	st := model.DefaultStatus()
	st.Mode = model.ModeOff
	st.TradeFraction = 0.4
	h := newHarness(t, st)

	if res := h.runner.Cycle(context.Background()); res.Reason != ReasonModeOff {
		t.Fatalf("got %+v, want mode_off skip", res)
	}
	w := h.state.Wallet()
	if w.TradeFraction != 0.4 {
		t.Errorf("published fraction = %v, want 0.4", w.TradeFraction)
	}
	if w.Balance != 10000 {
		t.Errorf("published balance = %v, want 10000", w.Balance)
	}
}

func TestCycle_ScanModePublishesWithoutTrading(t *testing.T) {
	h := newHarness(t, model.DefaultStatus(), 100, 101, 99)
	for i := 0; i < 3; i++ {
		if res := h.runner.Cycle(context.Background()); res.Skipped {
			t.Fatalf("cycle %d skipped: %s", i, res.Reason)
		}
	}
	latest, ok := h.state.Latest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if latest.LastAction != model.ActionScan || latest.Mode != model.ModeScan {
		t.Errorf("latest = %s/%s, want SCAN/scan", latest.LastAction, latest.Mode)
	}
	if latest.Close != 99 || latest.Symbol != model.DefaultSymbol {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Indicators.RSI == nil {
		t.Error("RSI should be available after 3 ticks")
	}
	if len(h.wallet.Trades()) != 0 {
		t.Errorf("scan mode traded %d times", len(h.wallet.Trades()))
	}
	if len(h.dataset.rows) != 3 || h.dataset.rows[0].Prediction != model.ActionScan {
		t.Errorf("dataset rows = %+v", h.dataset.rows)
	}
	// The engine still armed its cooldown on the momentum candidate.
	if latest.Cooldown == 0 {
		t.Error("expected an armed cooldown after a momentum candidate in scan mode")
	}
}

func TestCycle_RunModeBuysThenCoolsDown(t *testing.T) {
	h := newHarness(t, runStatus(), 100, 101, 102)

	h.runner.Cycle(context.Background())
	res := h.runner.Cycle(context.Background())
	if res.Decision.Action != model.ActionBuy || res.Execution.Outcome != portfolio.OutcomeBuy {
		t.Fatalf("second cycle = %+v, want executed BUY", res)
	}
	w := h.state.Wallet()
	if w.Balance != 7500 {
		t.Errorf("balance = %v, want 7500", w.Balance)
	}
	if w.PositionQty <= 0 {
		t.Errorf("position = %v, want > 0", w.PositionQty)
	}

	res = h.runner.Cycle(context.Background())
	if res.Decision.Action != model.ActionHold || res.Decision.Reason != "cooldown" {
		t.Errorf("third cycle = %+v, want cooldown HOLD", res.Decision)
	}
	if got := testutil.ToFloat64(h.metrics.TradesTotal.WithLabelValues("BUY")); got != 1 {
		t.Errorf("buy trades = %v, want 1", got)
	}
}

func TestCycle_SymbolChangeLiquidatesAndResets(t *testing.T) {
	h := newHarness(t, runStatus(), 100, 101, 102, 50)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.runner.Cycle(ctx)
	}
	if !h.wallet.PositionOpen() {
		t.Fatal("expected an open position before the symbol change")
	}

	st := runStatus()
	st.Symbol = "BTCUSDT"
	h.status.Save(ctx, st)

	res := h.runner.Cycle(ctx)
	if res.Symbol != "BTCUSDT" || h.runner.Symbol() != "BTCUSDT" {
		t.Errorf("symbol = %s, want BTCUSDT", res.Symbol)
	}
	if h.wallet.PositionOpen() {
		t.Error("position should be liquidated on symbol change")
	}
	trades := h.wallet.Trades()
	last := trades[len(trades)-1]
	if last.Action != model.ActionSell || last.Price != 102 || last.Symbol != model.DefaultSymbol {
		t.Errorf("liquidation trade = %+v, want SELL DOGEUSDT @ 102", last)
	}
	if h.runner.Buffered() != 1 {
		t.Errorf("buffer = %d ticks, want only the new symbol's tick", h.runner.Buffered())
	}
	if res.Decision.Reason == "cooldown" {
		t.Error("decision state should reset on symbol change")
	}
}

// restoredWallet resumes a wallet holding a position opened by a BUY of
// symbol at 100.
func restoredWallet(t *testing.T, symbol string) *portfolio.Wallet {
	t.Helper()
	src := portfolio.NewWallet(portfolio.DefaultConfig(), nil)
	src.SetSymbol(symbol)
	buy := src.Buy(100, t0).Trade
	w := portfolio.NewWallet(portfolio.DefaultConfig(), nil)
	if err := w.Restore(model.LedgerSummary{Last: buy, Trades: 1}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	return w
}

func newRestoredRunner(t *testing.T, w *portfolio.Wallet, feed *scriptedFeed) *Runner {
	t.Helper()
	st := runStatus()
	r, err := New(DefaultConfig(), Deps{
		Feed:   feed,
		Status: status.NewMemoryStore(&st),
		Wallet: w,
		Engine: decision.NewEngine(decision.DefaultConfig()),
		State:  state.New(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestCycle_RestoredPositionOnOtherSymbolIsLiquidated(t *testing.T) {
	w := restoredWallet(t, "ETHUSDT")
	feed := &scriptedFeed{prices: []float64{120, 0.1}}
	r := newRestoredRunner(t, w, feed)
	if r.Symbol() != "ETHUSDT" {
		t.Fatalf("runner symbol = %q, want the restored ETHUSDT", r.Symbol())
	}

	res := r.Cycle(context.Background())
	if res.Skipped || res.Symbol != model.DefaultSymbol {
		t.Fatalf("cycle = %+v, want a %s tick", res, model.DefaultSymbol)
	}
	if w.PositionOpen() {
		t.Fatal("restored position should be liquidated on symbol change")
	}
	trades := w.Trades()
	if len(trades) != 1 || trades[0].Action != model.ActionSell ||
		trades[0].Symbol != "ETHUSDT" || trades[0].Price != 120 {
		t.Fatalf("liquidation = %+v, want SELL ETHUSDT @ 120", trades)
	}
	if len(feed.symbols) != 2 || feed.symbols[0] != "ETHUSDT" || feed.symbols[1] != model.DefaultSymbol {
		t.Errorf("fetched symbols = %v", feed.symbols)
	}
}

func TestCycle_RestoredPositionWithoutPriceClosesAtEntry(t *testing.T) {
	w := restoredWallet(t, "ETHUSDT")
	r := newRestoredRunner(t, w, &scriptedFeed{err: errors.New("offline")})

	res := r.Cycle(context.Background())
	if !res.Skipped || res.Reason != ReasonPrice {
		t.Fatalf("cycle = %+v, want a price skip", res)
	}
	if w.PositionOpen() {
		t.Fatal("position should be closed even without a price")
	}
	trades := w.Trades()
	if len(trades) != 1 || trades[0].Price != 100 {
		t.Fatalf("liquidation = %+v, want SELL @ entry 100", trades)
	}
}

func TestCycle_RestoredPositionOnSameSymbolIsKept(t *testing.T) {
	w := restoredWallet(t, model.DefaultSymbol)
	r := newRestoredRunner(t, w, &scriptedFeed{prices: []float64{100}})
	r.Cycle(context.Background())
	if !w.PositionOpen() || len(w.Trades()) != 0 {
		t.Errorf("position should survive: open=%v trades=%d", w.PositionOpen(), len(w.Trades()))
	}
}

func TestCycle_SkipsWhenPausedOrOff(t *testing.T) {
	st := runStatus()
	st.Active = false
	h := newHarness(t, st, 100)
	if res := h.runner.Cycle(context.Background()); res.Reason != ReasonInactive {
		t.Errorf("inactive: reason = %q", res.Reason)
	}

	st = runStatus()
	st.Mode = model.ModeOff
	h = newHarness(t, st, 100)
	if res := h.runner.Cycle(context.Background()); res.Reason != ReasonModeOff {
		t.Errorf("off: reason = %q", res.Reason)
	}
	if h.feed.calls != 0 {
		t.Errorf("feed called %d times while off", h.feed.calls)
	}
}

func TestCycle_StatusErrorSkips(t *testing.T) {
	h := newHarness(t, runStatus(), 100)
	h.runner.deps.Status = failingStatus{}
	if res := h.runner.Cycle(context.Background()); res.Reason != ReasonStatus {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonStatus)
	}
}

func TestSafeCycle_RecoversPanic(t *testing.T) {
	h := newHarness(t, runStatus())
	h.feed.panics = true
	res := h.runner.SafeCycle(context.Background())
	if !res.Skipped || res.Reason != ReasonPanic {
		t.Fatalf("res = %+v, want panic skip", res)
	}
	if got := testutil.ToFloat64(h.metrics.CyclePanics); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestCycle_PublishesToLatestPublisher(t *testing.T) {
	h := newHarness(t, model.DefaultStatus(), 100, 100)
	pub := &recordingPublisher{err: errors.New("redis down")}
	h.runner.deps.Publisher = pub

	h.runner.Cycle(context.Background())
	h.runner.Cycle(context.Background())
	if len(pub.snaps) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(pub.snaps))
	}
	if got := testutil.ToFloat64(h.metrics.PublishErrs); got != 2 {
		t.Errorf("publish errors = %v, want 2", got)
	}
	if _, ok := h.state.Latest(); !ok {
		t.Error("state store should be updated even when the publisher fails")
	}
}

func TestCycle_RetrainCadenceTogglesTrainingFlag(t *testing.T) {
	h := newHarness(t, model.DefaultStatus(), 100, 101, 102, 103)
	flag := &flagRecorder{}
	tcfg := ml.DefaultTrainerConfig()
	tcfg.Interval = 3
	tcfg.MinRows = 1000
	trainer := ml.NewTrainer(tcfg, h.dataset, nil, ml.NewPredictor())

	deps := h.runner.deps
	deps.Trainer = trainer
	deps.Training = flag
	r, err := New(DefaultConfig(), deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.now = h.runner.now

	for i := 0; i < 4; i++ {
		if res := r.Cycle(context.Background()); res.Retrained {
			t.Errorf("cycle %d retrained with too little history", i)
		}
	}
	if got := testutil.ToFloat64(h.metrics.RetrainTotal.WithLabelValues("insufficient")); got != 1 {
		t.Errorf("insufficient retrains = %v, want 1", got)
	}
	if len(flag.calls) != 2 || !flag.calls[0] || flag.calls[1] {
		t.Errorf("training flag calls = %v, want [true false]", flag.calls)
	}
}

func TestRetrain_DisabledWithoutTrainer(t *testing.T) {
	h := newHarness(t, model.DefaultStatus())
	if _, err := h.runner.Retrain(context.Background()); !errors.Is(err, model.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, model.DefaultStatus(), 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := h.state.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first cycle never published")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestCycle_RecordsActivityLines(t *testing.T) {
	h := newHarness(t, runStatus(), 100, 101)
	recent := logger.NewRecent(10)
	h.runner.deps.Recent = recent
	ctx := context.Background()

	h.runner.Cycle(ctx)
	h.feed.err = errors.New("offline")
	h.runner.Cycle(ctx) // skipped cycles add nothing

	lines := recent.Lines(80)
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want one", lines)
	}
	want := "[2024-03-01 09:00:01] [DOGEUSDT] "
	if !strings.HasPrefix(lines[0], want) || !strings.Contains(lines[0], "@ 100.00") {
		t.Errorf("line = %q, want prefix %q and the price", lines[0], want)
	}
}
