package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"trading-simv1/internal/model"
)

// AppendRow inserts one tick row and, in the same transaction, backfills the
// previous row of the symbol: target = this close > previous close, and
// prediction_correct when the previous prediction was BUY or SELL.
func (s *Store) AppendRow(ctx context.Context, row model.DatasetRow) error {
	// accMu is taken before the connection, as in Accuracy, and held through
	// commit so a seeding scan never counts this row twice.
	s.accMu.Lock()
	defer s.accMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prevID int64
	var prevClose float64
	var prevPred string
	var correct sql.NullBool
	err = tx.QueryRowContext(ctx,
		`SELECT id, close, prediction FROM dataset WHERE symbol = ? ORDER BY id DESC LIMIT 1`,
		row.Symbol,
	).Scan(&prevID, &prevClose, &prevPred)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("sqlite read previous row: %w", err)
	default:
		target := row.Close > prevClose
		switch model.Action(prevPred) {
		case model.ActionBuy:
			correct = sql.NullBool{Bool: target, Valid: true}
		case model.ActionSell:
			correct = sql.NullBool{Bool: !target, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset SET target = ?, prediction_correct = ? WHERE id = ?`,
			target, correct, prevID,
		); err != nil {
			return fmt.Errorf("sqlite backfill: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset (symbol, ts, open, high, low, close, volume, prediction, target, prediction_correct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Symbol, row.TS.UnixMilli(), row.Open, row.High, row.Low, row.Close, row.Volume,
		string(row.Prediction), nullBool(row.Target), nullBool(row.PredictionCorrect),
	); err != nil {
		return fmt.Errorf("sqlite insert row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if t, ok := s.tally[row.Symbol]; ok {
		t.add(correct)
		t.add(nullBool(row.PredictionCorrect))
	}
	return nil
}

// History returns the most recent limit rows of a symbol, oldest first.
// limit <= 0 returns every row.
func (s *Store) History(ctx context.Context, symbol string, limit int) ([]model.DatasetRow, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, ts, open, high, low, close, volume, prediction, target, prediction_correct
		FROM dataset
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query dataset: %w", err)
	}
	defer rows.Close()

	var out []model.DatasetRow
	for rows.Next() {
		var r model.DatasetRow
		var tsMilli int64
		var pred string
		var target, correct sql.NullBool
		if err := rows.Scan(&r.ID, &r.Symbol, &tsMilli, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
			&pred, &target, &correct); err != nil {
			return nil, fmt.Errorf("sqlite scan dataset: %w", err)
		}
		r.TS = time.UnixMilli(tsMilli).UTC()
		r.Prediction = model.Action(pred)
		r.Target = boolPtr(target)
		r.PredictionCorrect = boolPtr(correct)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Accuracy returns the share of scored rows whose prediction was correct.
// Only the first call per symbol scans the table.
func (s *Store) Accuracy(ctx context.Context, symbol string) (float64, bool, error) {
	s.accMu.Lock()
	defer s.accMu.Unlock()
	t, ok := s.tally[symbol]
	if !ok {
		seeded, err := s.scanAccuracy(ctx, symbol)
		if err != nil {
			return 0, false, err
		}
		t = seeded
		s.tally[symbol] = t
	}
	if t.scored == 0 {
		return 0, false, nil
	}
	return float64(t.hits) / float64(t.scored), true, nil
}

func (s *Store) scanAccuracy(ctx context.Context, symbol string) (*accuracyTally, error) {
	var scored int64
	var hits sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(prediction_correct), SUM(prediction_correct)
		FROM dataset
		WHERE symbol = ? AND prediction_correct IS NOT NULL
	`, symbol).Scan(&scored, &hits)
	if err != nil {
		return nil, fmt.Errorf("sqlite accuracy: %w", err)
	}
	return &accuracyTally{scored: scored, hits: hits.Int64}, nil
}

// CountRows returns the number of dataset rows for a symbol.
func (s *Store) CountRows(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}
