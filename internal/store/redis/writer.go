// Package redis fans trader state out to Redis: the latest snapshot as a key
// plus pub/sub message, executed trades as a capped stream, and an optional
// Redis-backed runtime status store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"trading-simv1/internal/breaker"
	"trading-simv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	tradeStreamMaxLen = 10000
	defaultLatestTTL  = 30 * time.Minute
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// LatestKey is the key holding the latest snapshot JSON for a symbol.
func LatestKey(symbol string) string { return "latest:" + symbol }

// LatestChannel is the pub/sub channel snapshots are published on.
func LatestChannel(symbol string) string { return "pub:latest:" + symbol }

// TradeStream is the stream executed trades are appended to.
func TradeStream(symbol string) string { return "trades:" + symbol }

// Publisher writes snapshots and trades. Calls go through a circuit breaker
// so an unreachable Redis costs one rejected call per cycle, not a timeout.
type Publisher struct {
	client *goredis.Client
	cb     *breaker.Breaker
	ttl    time.Duration
}

// NewPublisher wraps a connected client. cb may be nil.
func NewPublisher(client *goredis.Client, cb *breaker.Breaker) *Publisher {
	if cb == nil {
		cb = breaker.New("redis", 5, 10*time.Second)
	}
	return &Publisher{client: client, cb: cb, ttl: defaultLatestTTL}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishLatest SETs the latest snapshot with a TTL and PUBLISHes it.
func (p *Publisher) PublishLatest(ctx context.Context, snap model.LatestSnapshot) error {
	data := string(snap.JSON())
	return p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, LatestKey(snap.Symbol), data, p.ttl)
		pipe.Publish(ctx, LatestChannel(snap.Symbol), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish latest %s: %w", snap.Symbol, err)
		}
		return nil
	})
}

// RecordTrade appends an executed trade to the symbol's capped stream.
func (p *Publisher) RecordTrade(ctx context.Context, tr model.TradeRecord) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	return p.cb.Execute(func() error {
		err := p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: TradeStream(tr.Symbol),
			MaxLen: tradeStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data": string(data),
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("redis xadd trade: %w", err)
		}
		return nil
	})
}

// ReadLatest returns the stored snapshot for a symbol, or nil if absent.
func (p *Publisher) ReadLatest(ctx context.Context, symbol string) (*model.LatestSnapshot, error) {
	data, err := p.client.Get(ctx, LatestKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get latest: %w", err)
	}
	var snap model.LatestSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode latest: %w", err)
	}
	return &snap, nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
