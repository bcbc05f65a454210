// Package replay feeds persisted dataset rows back through the trader as if
// they were live prices, for backtesting the decision engine and wallet.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trading-simv1/internal/model"
)

// ErrExhausted is returned by FetchPrice once every row has been replayed.
// It wraps model.ErrPriceUnavailable so the trader skips the cycle normally.
var ErrExhausted = fmt.Errorf("%w: replay exhausted", model.ErrPriceUnavailable)

// MaxGap caps the sleep between two rows when replaying at a finite speed.
const MaxGap = 5 * time.Second

// Feed is a model.PriceFeed over historical rows.
type Feed struct {
	mu     sync.Mutex
	rows   []model.DatasetRow
	pos    int
	speed  float64
	prevTS time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	log    *slog.Logger
}

// New creates a Feed over rows, sorted oldest first.
// speed controls playback: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func New(rows []model.DatasetRow, speed float64) *Feed {
	sorted := make([]model.DatasetRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })
	return &Feed{
		rows:  sorted,
		speed: speed,
		sleep: sleepCtx,
		log:   slog.With("component", "replay"),
	}
}

// Load reads up to limit rows for symbol (limit <= 0 reads all) and returns a
// Feed over them.
func Load(ctx context.Context, hist model.HistorySource, symbol string, limit int, speed float64) (*Feed, error) {
	rows, err := hist.History(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("replay: load history: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows for %s", model.ErrInsufficientHistory, symbol)
	}
	f := New(rows, speed)
	f.log.Info("history loaded", "symbol", symbol, "rows", len(rows), "speed", speed,
		"from", f.rows[0].TS, "to", f.rows[len(f.rows)-1].TS)
	return f, nil
}

// FetchPrice returns the close of the next row. The symbol is ignored: a Feed
// replays exactly one series.
func (f *Feed) FetchPrice(ctx context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.rows) {
		return 0, ErrExhausted
	}
	row := f.rows[f.pos]

	if f.speed > 0 && !f.prevTS.IsZero() {
		if gap := row.TS.Sub(f.prevTS); gap > 0 {
			if err := f.sleep(ctx, min(time.Duration(float64(gap)/f.speed), MaxGap)); err != nil {
				return 0, fmt.Errorf("%w: %v", model.ErrPriceUnavailable, err)
			}
		}
	}
	f.prevTS = row.TS
	f.pos++
	return row.Close, nil
}

// Now returns the timestamp of the row the next FetchPrice will emit, or the
// last row's timestamp once exhausted. It is the trader clock during a replay.
func (f *Feed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.pos < len(f.rows):
		return f.rows[f.pos].TS
	case len(f.rows) > 0:
		return f.rows[len(f.rows)-1].TS
	default:
		return time.Time{}
	}
}

// Remaining returns how many rows are still to be emitted.
func (f *Feed) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows) - f.pos
}

// Len returns the total number of rows.
func (f *Feed) Len() int { return len(f.rows) }

// Exhausted reports whether err means the replay has ended.
func Exhausted(err error) bool { return errors.Is(err, ErrExhausted) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
