// Package sqlite persists the tick dataset, the trade journal and model
// artifacts in a single SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/trader.db"; ":memory:" for tests
	// KeepArtifacts is how many model artifacts are retained; older ones are pruned.
	KeepArtifacts int
}

// Store is a single-connection SQLite store.
type Store struct {
	db            *sql.DB
	keepArtifacts int

	// Running prediction_correct tallies per symbol, seeded by one scan on
	// first use and advanced by AppendRow.
	accMu sync.Mutex
	tally map[string]*accuracyTally
}

type accuracyTally struct {
	scored int64
	hits   int64
}

func (a *accuracyTally) add(v sql.NullBool) {
	if !v.Valid {
		return
	}
	a.scored++
	if v.Bool {
		a.hits++
	}
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and applies the schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.KeepArtifacts
	if keep <= 0 {
		keep = 5
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db, keepArtifacts: keep, tally: make(map[string]*accuracyTally)}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dataset (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol             TEXT    NOT NULL,
			ts                 INTEGER NOT NULL,
			open               REAL    NOT NULL,
			high               REAL    NOT NULL,
			low                REAL    NOT NULL,
			close              REAL    NOT NULL,
			volume             REAL    NOT NULL DEFAULT 0,
			prediction         TEXT    NOT NULL,
			target             INTEGER,
			prediction_correct INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_dataset_symbol ON dataset(symbol, id);

		CREATE TABLE IF NOT EXISTS trades (
			id                 TEXT    PRIMARY KEY,
			symbol             TEXT    NOT NULL,
			action             TEXT    NOT NULL,
			qty                REAL    NOT NULL,
			price              REAL    NOT NULL,
			fee                REAL    NOT NULL,
			resulting_balance  REAL    NOT NULL,
			resulting_position REAL    NOT NULL,
			profit             REAL,
			ts                 INTEGER NOT NULL,
			seq                INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_seq ON trades(seq);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

		CREATE TABLE IF NOT EXISTS model_artifacts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
