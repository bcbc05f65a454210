// Package status stores the runtime configuration (active flag, mode,
// symbol, trade fraction, training flag) and validates changes to it.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"trading-simv1/internal/model"
)

// FileStore keeps the status in a JSON file. Writes go to a temp file that
// is renamed over the target so readers never see a half-written file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store for path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the stored status, or the defaults when the file is absent.
func (s *FileStore) Load(_ context.Context) (model.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.DefaultStatus(), nil
	}
	if err != nil {
		return model.Status{}, fmt.Errorf("read status %s: %w", s.path, err)
	}
	st := model.DefaultStatus()
	if err := json.Unmarshal(data, &st); err != nil {
		return model.Status{}, fmt.Errorf("decode status %s: %w", s.path, err)
	}
	return st.Normalize(), nil
}

// Save atomically replaces the file.
func (s *FileStore) Save(_ context.Context, st model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("create temp status: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

// MemoryStore keeps the status in memory; used by the backtest and tests.
type MemoryStore struct {
	mu sync.Mutex
	st *model.Status
}

// NewMemoryStore creates a store, optionally seeded with st.
func NewMemoryStore(st *model.Status) *MemoryStore {
	return &MemoryStore{st: st}
}

func (m *MemoryStore) Load(context.Context) (model.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return model.DefaultStatus(), nil
	}
	return m.st.Normalize(), nil
}

func (m *MemoryStore) Save(_ context.Context, st model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = &st
	return nil
}
