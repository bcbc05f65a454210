package status

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"trading-simv1/internal/model"
)

// Service is the mutation boundary for the runtime status. Every setter
// validates its input, writes through the store and returns the result.
// Changes take effect when the ingestion loop next loads the status.
type Service struct {
	mu    sync.Mutex
	store model.StatusStore
	log   *slog.Logger

	onChange func(model.Status)
}

// NewService wraps a status store.
func NewService(store model.StatusStore) *Service {
	return &Service{store: store, log: slog.With("component", "status")}
}

// OnChange registers a callback invoked after every successful update.
func (s *Service) OnChange(fn func(model.Status)) { s.onChange = fn }

// Load returns the current status. It satisfies model.StatusSource.
func (s *Service) Load(ctx context.Context) (model.Status, error) {
	return s.store.Load(ctx)
}

// SetMode switches between scan, run and off.
func (s *Service) SetMode(ctx context.Context, name string) (model.Status, error) {
	mode, err := model.ParseMode(name)
	if err != nil {
		return model.Status{}, err
	}
	return s.update(ctx, func(st *model.Status) { st.Mode = mode })
}

// SetSymbol changes the traded symbol.
func (s *Service) SetSymbol(ctx context.Context, symbol string) (model.Status, error) {
	sym, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return model.Status{}, err
	}
	return s.update(ctx, func(st *model.Status) { st.Symbol = sym })
}

// SetTradeFraction sets the buy fraction, clamped to [0.05, 0.5].
// Non-finite values are rejected rather than clamped.
func (s *Service) SetTradeFraction(ctx context.Context, f float64) (model.Status, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return model.Status{}, fmt.Errorf("%w: trade fraction must be a finite number", model.ErrInvalidConfiguration)
	}
	return s.update(ctx, func(st *model.Status) { st.TradeFraction = model.ClampFraction(f) })
}

// SetActive pauses or resumes ingestion without changing the mode.
func (s *Service) SetActive(ctx context.Context, active bool) (model.Status, error) {
	return s.update(ctx, func(st *model.Status) { st.Active = active })
}

// SetTraining records whether a retrain is in progress.
func (s *Service) SetTraining(ctx context.Context, training bool) (model.Status, error) {
	return s.update(ctx, func(st *model.Status) { st.Training = training })
}

func (s *Service) update(ctx context.Context, mutate func(*model.Status)) (model.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Load(ctx)
	if err != nil {
		return model.Status{}, err
	}
	before := st
	mutate(&st)
	if st == before {
		return st, nil
	}
	if err := s.store.Save(ctx, st); err != nil {
		return model.Status{}, fmt.Errorf("save status: %w", err)
	}
	s.log.Info("status updated",
		"active", st.Active, "mode", st.Mode, "symbol", st.Symbol,
		"trade_fraction", st.TradeFraction, "training", st.Training)
	if s.onChange != nil {
		s.onChange(st)
	}
	return st, nil
}
