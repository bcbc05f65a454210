package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"
	"time"

	"trading-simv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type fakeHistory struct {
	rows []model.DatasetRow
	err  error
}

func (f *fakeHistory) History(_ context.Context, _ string, limit int) ([]model.DatasetRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.rows) > limit {
		return f.rows[len(f.rows)-limit:], nil
	}
	return f.rows, nil
}

type memArtifacts struct {
	saved [][]byte
}

func (m *memArtifacts) SaveArtifactJSON(_ context.Context, data []byte) error {
	m.saved = append(m.saved, data)
	return nil
}

func (m *memArtifacts) ReadLatestArtifactJSON(context.Context) ([]byte, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func wave(n int) []model.PriceTick {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PriceTick, n)
	for i := range out {
		p := 100 + 5*math.Sin(float64(i)/3) + 0.5*math.Cos(float64(i)*1.7)
		out[i] = model.QuoteTick(t0.Add(time.Duration(i)*time.Second), p)
	}
	return out
}

func rowsFrom(ticks []model.PriceTick) []model.DatasetRow {
	rows := make([]model.DatasetRow, len(ticks))
	for i, t := range ticks {
		rows[i] = model.DatasetRow{
			ID: int64(i + 1), Symbol: "DOGEUSDT", TS: t.TS,
			Open: t.Open, High: t.High, Low: t.Low, Close: t.Close, Volume: t.Volume,
			Prediction: model.ActionHold,
		}
	}
	return rows
}

// ────────────────────────────────────────────────────────────
// Features / scaler
// ────────────────────────────────────────────────────────────

func TestBuildRow_ShortHistoryIsIncomplete(t *testing.T) {
	row := BuildRow(wave(1))
	if row.Complete() {
		t.Fatal("single tick row should be incomplete")
	}
	for _, want := range []string{"delta", "ma5", "rsi", "macd"} {
		if !slices.Contains(row.Missing, want) {
			t.Errorf("missing %v should include %q", row.Missing, want)
		}
	}
	if BuildRow(nil).Complete() {
		t.Error("empty input should be incomplete")
	}
}

func TestBuildRow_Complete(t *testing.T) {
	row := BuildRow(wave(40))
	if !row.Complete() {
		t.Fatalf("40 ticks should give a complete row, missing %v", row.Missing)
	}
	if len(row.Values) != len(FeatureOrder) {
		t.Errorf("row width = %d, want %d", len(row.Values), len(FeatureOrder))
	}
}

func TestBuildExamples_LabelsAndDrops(t *testing.T) {
	ticks := make([]model.PriceTick, 50)
	for i := range ticks {
		ticks[i] = model.QuoteTick(time.Unix(int64(i), 0), 100+float64(i))
	}
	ex := BuildExamples(ticks)
	// MACD signal is first available at tick 34 (index 33); the last tick has no label.
	if ex.Len() != 16 {
		t.Fatalf("examples = %d, want 16", ex.Len())
	}
	for i, y := range ex.Y {
		if !y {
			t.Errorf("example %d: rising series should be labelled up", i)
		}
	}
}

func TestScaler(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 5}, {3, 5}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Mean[0] != 2 || s.Std[0] != 1 || s.Mean[1] != 5 || s.Std[1] != 1 {
		t.Errorf("scaler = %+v", s)
	}
	x, err := s.Transform([]float64{3, 5})
	if err != nil {
		t.Fatal(err)
	}
	if x[0] != 1 || x[1] != 0 {
		t.Errorf("transform = %v, want [1 0]", x)
	}
	if _, err := s.Transform([]float64{1}); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("width mismatch error = %v", err)
	}
	if _, err := FitScaler(nil); err == nil {
		t.Error("empty table should fail")
	}
}

// ────────────────────────────────────────────────────────────
// Classifiers
// ────────────────────────────────────────────────────────────

func separable() ([][]float64, []bool) {
	var X [][]float64
	var y []bool
	for i := 0; i < 40; i++ {
		v := float64(i % 10)
		X = append(X, []float64{v, float64((i * 7) % 3)})
		y = append(y, v >= 5)
	}
	return X, y
}

func TestClassifiers_LearnThreshold(t *testing.T) {
	for _, kind := range []Kind{KindGBT, KindForest} {
		t.Run(string(kind), func(t *testing.T) {
			clf, err := NewClassifier(kind, 1)
			if err != nil {
				t.Fatal(err)
			}
			X, y := separable()
			if err := clf.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			if up, _ := clf.Predict([]float64{8, 1}); !up {
				t.Error("x=8 should be positive")
			}
			if up, _ := clf.Predict([]float64{1, 1}); up {
				t.Error("x=1 should be negative")
			}
			p, err := clf.PredictProba([]float64{9, 0})
			if err != nil || p < 0 || p > 1 {
				t.Errorf("proba = %v, err = %v", p, err)
			}
			if _, err := clf.PredictProba([]float64{1}); !errors.Is(err, model.ErrArtifactCorrupt) {
				t.Errorf("width mismatch error = %v", err)
			}
		})
	}
}

func TestRandomForest_Deterministic(t *testing.T) {
	X, y := separable()
	a, b := NewRandomForest(), NewRandomForest()
	a.NTrees, b.NTrees = 10, 10
	_ = a.Fit(X, y)
	_ = b.Fit(X, y)
	for _, x := range X {
		pa, _ := a.PredictProba(x)
		pb, _ := b.PredictProba(x)
		if pa != pb {
			t.Fatalf("same seed gave %v and %v", pa, pb)
		}
	}
}

// Draws from the global math/rand source between fits must not change the
// trained forest: every tree comes from the forest's own seeded source.
func TestRandomForest_SeedFixesEveryTree(t *testing.T) {
	X, y := separable()
	fit := func() []byte {
		f := NewRandomForest()
		f.NTrees, f.Seed = 8, 42
		if err := f.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		b, err := json.Marshal(f)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	first := fit()
	for i := 0; i < 100; i++ {
		rand.Intn(1000)
	}
	if second := fit(); !bytes.Equal(first, second) {
		t.Error("same seed produced different trees")
	}
}

func TestClassifiers_UnfittedAndBadInput(t *testing.T) {
	if _, err := NewRandomForest().PredictProba([]float64{1}); err == nil {
		t.Error("unfitted forest should fail")
	}
	if _, err := NewGradientBoosted().PredictProba([]float64{1}); err == nil {
		t.Error("unfitted gbt should fail")
	}
	if err := NewGradientBoosted().Fit([][]float64{{1}}, []bool{true, false}); err == nil {
		t.Error("label count mismatch should fail")
	}
	if _, err := NewClassifier("svm", 0); !errors.Is(err, model.ErrInvalidConfiguration) {
		t.Errorf("unknown kind error = %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Artifact
// ────────────────────────────────────────────────────────────

func trainedArtifact(t *testing.T, kind Kind) *Artifact {
	t.Helper()
	hist := &fakeHistory{rows: rowsFrom(wave(120))}
	cfg := DefaultTrainerConfig()
	cfg.Kind = kind
	tr := NewTrainer(cfg, hist, nil, NewPredictor())
	art, err := tr.Train(context.Background(), "DOGEUSDT")
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return art
}

func TestArtifact_RoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindGBT, KindForest} {
		art := trainedArtifact(t, kind)
		data, err := art.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		got, err := UnmarshalArtifact(data)
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", kind, err)
		}

		row := BuildRow(wave(60))
		a, b := NewPredictor(), NewPredictor()
		_ = a.Publish(art)
		_ = b.Publish(got)
		if a.Predict(row) != b.Predict(row) {
			t.Errorf("%s: prediction changed after round trip", kind)
		}
	}
}

func TestArtifact_Corruption(t *testing.T) {
	if _, err := UnmarshalArtifact([]byte("{not json")); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("bad json: %v", err)
	}

	art := trainedArtifact(t, KindGBT)
	art.FeatureOrder = art.FeatureOrder[:3]
	if err := art.Validate(); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("feature order mismatch: %v", err)
	}

	art = trainedArtifact(t, KindGBT)
	art.Scaler.Mean = art.Scaler.Mean[:2]
	if err := art.Validate(); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("scaler mismatch: %v", err)
	}

	art = trainedArtifact(t, KindGBT)
	art.Kind = KindForest
	if err := art.Validate(); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("kind without classifier: %v", err)
	}

	tree := Tree{Nodes: []Node{{Feature: 0, Left: 0, Right: 1}, {Leaf: true}}}
	if err := tree.validate(len(FeatureOrder)); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("self-referencing node: %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Trainer / Predictor
// ────────────────────────────────────────────────────────────

func TestTrainer_InsufficientHistory(t *testing.T) {
	pred := NewPredictor()
	store := &memArtifacts{}
	tr := NewTrainer(DefaultTrainerConfig(), &fakeHistory{rows: rowsFrom(wave(79))}, store, pred)

	art, err := tr.Train(context.Background(), "DOGEUSDT")
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
	if art != nil || pred.Ready() || len(store.saved) != 0 {
		t.Error("a no-op train must not produce or publish an artifact")
	}
	if got := pred.PredictTicks(wave(60)); got != model.ActionHold {
		t.Errorf("fresh predictor = %s, want HOLD", got)
	}
}

func TestTrainer_TrainsAndPublishes(t *testing.T) {
	pred := NewPredictor()
	store := &memArtifacts{}
	tr := NewTrainer(DefaultTrainerConfig(), &fakeHistory{rows: rowsFrom(wave(120))}, store, pred)

	art, err := tr.Train(context.Background(), "DOGEUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if art.Rows != 120 || art.Examples == 0 || art.Kind != KindGBT {
		t.Errorf("artifact = kind %s rows %d examples %d", art.Kind, art.Rows, art.Examples)
	}
	if len(store.saved) != 1 {
		t.Errorf("store saved %d artifacts, want 1", len(store.saved))
	}
	if pred.Artifact() != art {
		t.Error("predictor should serve the new artifact")
	}
	switch got := pred.PredictTicks(wave(60)); got {
	case model.ActionBuy, model.ActionSell:
	default:
		t.Errorf("trained predictor = %s, want BUY or SELL", got)
	}
	if got := pred.PredictTicks(wave(5)); got != model.ActionHold {
		t.Errorf("incomplete row = %s, want HOLD", got)
	}
}

func TestTrainer_Cadence(t *testing.T) {
	cfg := DefaultTrainerConfig()
	cfg.Interval = 5
	tr := NewTrainer(cfg, &fakeHistory{rows: rowsFrom(wave(100))}, nil, NewPredictor())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tr.Observe()
		if art, err := tr.MaybeTrain(ctx, "DOGEUSDT"); art != nil || err != nil {
			t.Fatalf("tick %d: trained early (%v, %v)", i, art, err)
		}
	}
	tr.Observe()
	art, err := tr.MaybeTrain(ctx, "DOGEUSDT")
	if err != nil || art == nil {
		t.Fatalf("due train: art=%v err=%v", art, err)
	}
	if tr.Due() {
		t.Error("counter should restart after an attempt")
	}
}

func TestTrainer_SingleInFlight(t *testing.T) {
	tr := NewTrainer(DefaultTrainerConfig(), &fakeHistory{rows: rowsFrom(wave(100))}, nil, NewPredictor())
	tr.running.Store(true)
	if _, err := tr.Train(context.Background(), "DOGEUSDT"); !errors.Is(err, ErrTrainingInFlight) {
		t.Errorf("err = %v, want ErrTrainingInFlight", err)
	}
	tr.running.Store(false)
	if _, err := tr.Train(context.Background(), "DOGEUSDT"); err != nil {
		t.Errorf("train after release: %v", err)
	}
}

func TestTrainer_OnRunning(t *testing.T) {
	tr := NewTrainer(DefaultTrainerConfig(), &fakeHistory{rows: rowsFrom(wave(10))}, nil, NewPredictor())
	var calls []bool
	tr.OnRunning(func(running bool) { calls = append(calls, running) })

	tr.Train(context.Background(), "DOGEUSDT")
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("calls = %v, want [true false]", calls)
	}

	calls = nil
	tr.running.Store(true)
	tr.Train(context.Background(), "DOGEUSDT")
	tr.running.Store(false)
	if len(calls) != 0 {
		t.Errorf("rejected train fired the callback: %v", calls)
	}
}

func TestTrainer_HistoryError(t *testing.T) {
	boom := errors.New("db locked")
	tr := NewTrainer(DefaultTrainerConfig(), &fakeHistory{err: boom}, nil, NewPredictor())
	if _, err := tr.Train(context.Background(), "DOGEUSDT"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped history error", err)
	}
	if tr.Running() {
		t.Error("in-flight flag must be released on error")
	}
}

func TestPredictor_Load(t *testing.T) {
	ctx := context.Background()
	store := &memArtifacts{}

	p := NewPredictor()
	if err := p.Load(ctx, store); err != nil || p.Ready() {
		t.Fatalf("empty store: err=%v ready=%v", err, p.Ready())
	}

	store.saved = append(store.saved, []byte(`{"kind":"gbt"}`))
	if err := p.Load(ctx, store); !errors.Is(err, model.ErrArtifactCorrupt) {
		t.Errorf("corrupt artifact: err = %v", err)
	}
	if p.Ready() {
		t.Error("corrupt artifact must leave the predictor empty")
	}

	data, _ := trainedArtifact(t, KindForest).Marshal()
	store.saved = append(store.saved, data)
	if err := p.Load(ctx, store); err != nil {
		t.Fatal(err)
	}
	if !p.Ready() || p.Artifact().Kind != KindForest {
		t.Error("predictor should serve the loaded forest")
	}
}
