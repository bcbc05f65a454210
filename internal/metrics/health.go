package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// DefaultStaleAfter is how old the last accepted tick may get before the
// loop is reported degraded.
const DefaultStaleAfter = 30 * time.Second

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LastTickTime   time.Time
	LastSkipReason string
	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool
	ModelReady     bool

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	StaleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.LastSkipReason = ""
	h.mu.Unlock()
}

func (h *HealthStatus) SetSkipped(reason string) {
	h.mu.Lock()
	h.LastSkipReason = reason
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetModelReady(v bool) {
	h.mu.Lock()
	h.ModelReady = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either handle may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	LastTickTime    string  `json:"last_tick_time,omitempty"`
	TickAge         string  `json:"tick_age,omitempty"`
	LastSkipReason  string  `json:"last_skip_reason,omitempty"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	ModelReady      bool    `json:"model_ready"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Report evaluates the current health. A stale tick stream or a failing
// enabled Redis is "degraded"; a failing SQLite store is "unhealthy".
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	r := HealthReport{
		Status:          "healthy",
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		LastSkipReason:  h.LastSkipReason,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ModelReady:      h.ModelReady,
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	stale := true
	if !h.LastTickTime.IsZero() {
		age := now.Sub(h.LastTickTime)
		r.LastTickTime = h.LastTickTime.Format(time.RFC3339)
		r.TickAge = age.Round(time.Millisecond).String()
		stale = age > h.StaleAfter
	}

	code := http.StatusOK
	if stale || (h.RedisEnabled && !h.RedisConnected) {
		r.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		r.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(report)
}
