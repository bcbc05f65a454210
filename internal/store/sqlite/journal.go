package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-simv1/internal/model"
)

// RecordTrade persists an executed trade to the journal.
func (s *Store) RecordTrade(ctx context.Context, tr model.TradeRecord) error {
	var profit sql.NullFloat64
	if tr.Profit != nil {
		profit = sql.NullFloat64{Float64: *tr.Profit, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, action, qty, price, fee, resulting_balance, resulting_position, profit, ts, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM trades))`,
		tr.ID, tr.Symbol, string(tr.Action), tr.Qty, tr.Price, tr.Fee,
		tr.ResultingBalance, tr.ResultingPosition, profit, tr.TS.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	return nil
}

// Trades returns the last limit trades, newest first.
func (s *Store) Trades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, action, qty, price, fee, resulting_balance, resulting_position, profit, ts
		FROM trades ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var action string
		var profit sql.NullFloat64
		var tsMilli int64
		if err := rows.Scan(&t.ID, &t.Symbol, &action, &t.Qty, &t.Price, &t.Fee,
			&t.ResultingBalance, &t.ResultingPosition, &profit, &tsMilli); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Action = model.Action(action)
		t.TS = time.UnixMilli(tsMilli).UTC()
		if profit.Valid {
			p := profit.Float64
			t.Profit = &p
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// LedgerSummary returns the newest trade, the trade count and the realized
// profit across the journal, for restoring the wallet at startup.
func (s *Store) LedgerSummary(ctx context.Context) (model.LedgerSummary, error) {
	var sum model.LedgerSummary
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(profit), 0) FROM trades`,
	).Scan(&sum.Trades, &sum.RealizedPnL); err != nil {
		return sum, fmt.Errorf("sqlite ledger summary: %w", err)
	}
	if sum.Trades == 0 {
		return sum, nil
	}
	last, err := s.Trades(ctx, 1)
	if err != nil {
		return sum, err
	}
	if len(last) > 0 {
		sum.Last = &last[0]
	}
	return sum, nil
}
