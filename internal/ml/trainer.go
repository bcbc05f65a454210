package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"trading-simv1/internal/model"
)

// ErrTrainingInFlight is returned when a retrain is requested while one runs.
var ErrTrainingInFlight = errors.New("ml: training already in progress")

// TrainerConfig controls the retrain cadence.
type TrainerConfig struct {
	Interval     int   // ticks between retrains
	MinRows      int   // history rows required to train
	HistoryLimit int   // most recent rows read for training; <= 0 reads all
	Kind         Kind  // chosen once at startup
	Seed         int64 // forest bootstrap seed
}

// DefaultTrainerConfig retrains a boosted model every 50 ticks once 80 rows exist.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Interval:     50,
		MinRows:      80,
		HistoryLimit: 2000,
		Kind:         KindGBT,
		Seed:         42,
	}
}

// Trainer fits artifacts from persisted history and hands them to a Predictor.
type Trainer struct {
	cfg   TrainerConfig
	hist  model.HistorySource
	store model.ArtifactStore
	pred  *Predictor
	log   *slog.Logger

	since     atomic.Int64
	running   atomic.Bool
	onRunning func(running bool)
	now       func() time.Time
}

// NewTrainer creates a Trainer. store may be nil to skip persistence.
func NewTrainer(cfg TrainerConfig, hist model.HistorySource, store model.ArtifactStore, pred *Predictor) *Trainer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTrainerConfig().Interval
	}
	if cfg.Kind == "" {
		cfg.Kind = KindGBT
	}
	return &Trainer{
		cfg:   cfg,
		hist:  hist,
		store: store,
		pred:  pred,
		log:   slog.With("component", "trainer"),
		now:   time.Now,
	}
}

// OnRunning registers a callback invoked with true when a retrain starts and
// false when it finishes. Rejected concurrent requests do not trigger it.
func (t *Trainer) OnRunning(fn func(running bool)) { t.onRunning = fn }

// Observe counts one appended tick.
func (t *Trainer) Observe() { t.since.Add(1) }

// Due reports whether enough ticks have been observed since the last attempt.
func (t *Trainer) Due() bool { return t.since.Load() >= int64(t.cfg.Interval) }

// Running reports whether a retrain is in flight.
func (t *Trainer) Running() bool { return t.running.Load() }

// MaybeTrain trains when the cadence is due. It returns nil, nil when not due.
// The tick counter restarts on every attempt, successful or not.
func (t *Trainer) MaybeTrain(ctx context.Context, symbol string) (*Artifact, error) {
	if !t.Due() {
		return nil, nil
	}
	t.since.Store(0)
	return t.Train(ctx, symbol)
}

// Train fits a new artifact from the symbol's history, persists it and
// publishes it to the predictor. Only one Train runs at a time.
func (t *Trainer) Train(ctx context.Context, symbol string) (*Artifact, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrTrainingInFlight
	}
	defer t.running.Store(false)
	if t.onRunning != nil {
		t.onRunning(true)
		defer t.onRunning(false)
	}

	start := t.now()
	rows, err := t.hist.History(ctx, symbol, t.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(rows) < t.cfg.MinRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", model.ErrInsufficientHistory, len(rows), t.cfg.MinRows)
	}

	ticks := make([]model.PriceTick, len(rows))
	for i, r := range rows {
		ticks[i] = r.Tick()
	}
	ex := BuildExamples(ticks)
	if ex.Len() == 0 {
		return nil, fmt.Errorf("%w: no complete feature rows in %d ticks", model.ErrInsufficientHistory, len(rows))
	}

	scaler, err := FitScaler(ex.X)
	if err != nil {
		return nil, err
	}
	Xs, err := scaler.TransformAll(ex.X)
	if err != nil {
		return nil, err
	}
	clf, err := NewClassifier(t.cfg.Kind, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(Xs, ex.Y); err != nil {
		return nil, fmt.Errorf("fit %s: %w", t.cfg.Kind, err)
	}

	art, err := newArtifact(clf, scaler)
	if err != nil {
		return nil, err
	}
	art.Symbol = symbol
	art.TrainedAt = t.now().UTC()
	art.Rows = len(rows)
	art.Examples = ex.Len()
	art.TrainAccuracy = accuracy(clf, Xs, ex.Y)

	if t.store != nil {
		data, err := art.Marshal()
		if err != nil {
			return nil, fmt.Errorf("encode artifact: %w", err)
		}
		if err := t.store.SaveArtifactJSON(ctx, data); err != nil {
			return nil, fmt.Errorf("persist artifact: %w", err)
		}
	}
	if err := t.pred.Publish(art); err != nil {
		return nil, err
	}

	t.log.Info("model retrained",
		"symbol", symbol,
		"kind", art.Kind,
		"rows", art.Rows,
		"examples", art.Examples,
		"train_accuracy", art.TrainAccuracy,
		"duration", t.now().Sub(start),
	)
	return art, nil
}

func accuracy(clf Classifier, X [][]float64, y []bool) float64 {
	if len(y) == 0 {
		return 0
	}
	hits := 0
	for i, x := range X {
		if p, err := clf.Predict(x); err == nil && p == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y))
}
