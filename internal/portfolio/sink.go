package portfolio

import (
	"context"
	"errors"

	"trading-simv1/internal/model"
)

// MultiSink forwards each trade to every sink and joins their errors.
type MultiSink []model.TradeSink

func (m MultiSink) RecordTrade(ctx context.Context, tr model.TradeRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordTrade(ctx, tr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
