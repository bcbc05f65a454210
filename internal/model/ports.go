package model

import "context"

// ── Collaborator Port Interfaces ──
// The ingestion task depends only on these; concrete implementations live in
// internal/feed, internal/status and internal/store.

// PriceFeed fetches the last trade price for a symbol.
// Any failure is reported as an error wrapping ErrPriceUnavailable.
type PriceFeed interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// StatusSource is the configuration port pulled once per cycle.
// Implementations must return DefaultStatus when nothing is persisted.
type StatusSource interface {
	Load(ctx context.Context) (Status, error)
}

// StatusStore is a StatusSource that can also persist mutations.
type StatusStore interface {
	StatusSource
	Save(ctx context.Context, st Status) error
}

// DatasetWriter appends one row per tick.
// Implementations may backfill Target/PredictionCorrect of the previous row.
type DatasetWriter interface {
	AppendRow(ctx context.Context, row DatasetRow) error
}

// HistorySource reads the unbounded persisted history used for training.
// limit <= 0 means all rows. Rows are returned oldest first.
type HistorySource interface {
	History(ctx context.Context, symbol string, limit int) ([]DatasetRow, error)
}

// AccuracySource reports the share of backfilled rows whose prediction was correct.
// ok is false when no row has been scored yet.
type AccuracySource interface {
	Accuracy(ctx context.Context, symbol string) (acc float64, ok bool, err error)
}

// TradeSink receives every executed trade.
type TradeSink interface {
	RecordTrade(ctx context.Context, tr TradeRecord) error
}

// ArtifactStore persists model artifacts as raw JSON.
// Using []byte avoids a model→ml import cycle.
type ArtifactStore interface {
	// SaveArtifactJSON persists a JSON-encoded artifact.
	SaveArtifactJSON(ctx context.Context, data []byte) error

	// ReadLatestArtifactJSON loads the most recent artifact.
	// Returns nil, nil if none exists.
	ReadLatestArtifactJSON(ctx context.Context) ([]byte, error)
}

// LatestPublisher fans the latest snapshot out to external readers.
type LatestPublisher interface {
	PublishLatest(ctx context.Context, snap LatestSnapshot) error
}
