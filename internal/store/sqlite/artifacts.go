package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveArtifactJSON stores a model artifact and prunes all but the newest few.
func (s *Store) SaveArtifactJSON(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_artifacts (data, created_at) VALUES (?, ?)`,
		string(data), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("sqlite save artifact: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM model_artifacts
		WHERE id NOT IN (SELECT id FROM model_artifacts ORDER BY id DESC LIMIT ?)`,
		s.keepArtifacts,
	); err != nil {
		return fmt.Errorf("sqlite prune artifacts: %w", err)
	}
	return tx.Commit()
}

// ReadLatestArtifactJSON loads the most recent artifact. Returns nil, nil if none exists.
func (s *Store) ReadLatestArtifactJSON(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM model_artifacts
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read artifact: %w", err)
	}
	return []byte(data), nil
}

// ArtifactCount returns the number of retained artifacts.
func (s *Store) ArtifactCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_artifacts`).Scan(&n)
	return n, err
}
