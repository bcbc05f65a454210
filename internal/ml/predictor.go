package ml

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"trading-simv1/internal/model"
)

type loaded struct {
	art *Artifact
	clf Classifier
}

// Predictor serves predictions from the most recently published artifact.
// Publishing swaps the scaler and classifier together in one pointer store.
type Predictor struct {
	cur atomic.Pointer[loaded]
	log *slog.Logger
}

// NewPredictor returns a predictor with no artifact; it predicts HOLD.
func NewPredictor() *Predictor {
	return &Predictor{log: slog.With("component", "predictor")}
}

// Publish validates and installs an artifact.
func (p *Predictor) Publish(a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	clf, err := a.Classifier()
	if err != nil {
		return err
	}
	p.cur.Store(&loaded{art: a, clf: clf})
	return nil
}

// Load restores the last persisted artifact. A missing artifact is not an
// error; an unreadable one is returned and leaves the predictor unchanged.
func (p *Predictor) Load(ctx context.Context, store model.ArtifactStore) error {
	data, err := store.ReadLatestArtifactJSON(ctx)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if data == nil {
		return nil
	}
	a, err := UnmarshalArtifact(data)
	if err != nil {
		return err
	}
	return p.Publish(a)
}

// Artifact returns the active artifact, or nil.
func (p *Predictor) Artifact() *Artifact {
	if l := p.cur.Load(); l != nil {
		return l.art
	}
	return nil
}

// Ready reports whether an artifact is installed.
func (p *Predictor) Ready() bool { return p.cur.Load() != nil }

// Predict classifies a feature row: BUY for the positive class, SELL
// otherwise. It returns HOLD when no artifact exists, when a feature is
// missing, or when the row cannot be scored against the artifact.
func (p *Predictor) Predict(row Row) model.Action {
	l := p.cur.Load()
	if l == nil || !row.Complete() {
		return model.ActionHold
	}
	x, err := l.art.Scaler.Transform(row.Values)
	if err != nil {
		p.log.Warn("prediction skipped", "error", err)
		return model.ActionHold
	}
	up, err := l.clf.Predict(x)
	if err != nil {
		p.log.Warn("prediction skipped", "error", err)
		return model.ActionHold
	}
	if up {
		return model.ActionBuy
	}
	return model.ActionSell
}

// PredictTicks builds the feature row for the last tick and predicts it.
func (p *Predictor) PredictTicks(ticks []model.PriceTick) model.Action {
	return p.Predict(BuildRow(ticks))
}
