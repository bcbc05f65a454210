package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trading-simv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// DefaultStatusKey holds the runtime status JSON.
const DefaultStatusKey = "trader:status"

// StatusStore keeps the runtime status in a Redis key so several processes
// (trader, dashboards) can share it.
type StatusStore struct {
	client *goredis.Client
	key    string
}

// NewStatusStore creates a store on key (DefaultStatusKey when empty).
func NewStatusStore(client *goredis.Client, key string) *StatusStore {
	if key == "" {
		key = DefaultStatusKey
	}
	return &StatusStore{client: client, key: key}
}

// Load returns the stored status, or the defaults when the key is absent.
func (s *StatusStore) Load(ctx context.Context) (model.Status, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.DefaultStatus(), nil
	}
	if err != nil {
		return model.Status{}, fmt.Errorf("redis get status: %w", err)
	}
	st := model.DefaultStatus()
	if err := json.Unmarshal(data, &st); err != nil {
		return model.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st.Normalize(), nil
}

// Save writes the status without expiry.
func (s *StatusStore) Save(ctx context.Context, st model.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	return nil
}
