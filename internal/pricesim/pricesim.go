// Package pricesim serves random-walk prices in the Binance and CoinGecko REST
// shapes the feed reads, so the trader can run without internet access.
package pricesim

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"trading-simv1/internal/feed"
	"trading-simv1/internal/model"
)

// DefaultStartPrices seeds the symbols the trader usually runs on.
var DefaultStartPrices = map[string]float64{
	"DOGEUSDT": 0.15,
	"BTCUSDT":  65000,
	"ETHUSDT":  3200,
	"SOLUSDT":  150,
}

// Config configures the simulator.
type Config struct {
	Step        float64 // max fractional move per step, 0.001 = ±0.1%
	Seed        int64
	StartPrices map[string]float64
	// UnknownStart seeds symbols missing from StartPrices.
	UnknownStart float64
}

// DefaultConfig walks ±0.1% per step.
func DefaultConfig() Config {
	return Config{
		Step:         0.001,
		Seed:         time.Now().UnixNano(),
		StartPrices:  DefaultStartPrices,
		UnknownStart: 100,
	}
}

// Simulator holds one random-walk price per symbol.
type Simulator struct {
	mu     sync.Mutex
	cfg    Config
	prices map[string]float64
	rng    *rand.Rand
	down   bool
	log    *slog.Logger
}

// New creates a simulator seeded from cfg.StartPrices.
func New(cfg Config) *Simulator {
	if cfg.Step <= 0 {
		cfg.Step = DefaultConfig().Step
	}
	if cfg.UnknownStart <= 0 {
		cfg.UnknownStart = DefaultConfig().UnknownStart
	}
	prices := make(map[string]float64, len(cfg.StartPrices))
	for sym, p := range cfg.StartPrices {
		if p > 0 {
			prices[strings.ToUpper(sym)] = p
		}
	}
	return &Simulator{
		cfg:    cfg,
		prices: prices,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		log:    slog.With("component", "pricesim"),
	}
}

// Price returns the current price, seeding unknown symbols on first use.
func (s *Simulator) Price(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priceLocked(symbol)
}

func (s *Simulator) priceLocked(symbol string) float64 {
	p, ok := s.prices[symbol]
	if !ok {
		p = s.cfg.UnknownStart
		s.prices[symbol] = p
	}
	return p
}

// Step moves every known symbol by up to ±Step.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, p := range s.prices {
		next := p * (1 + (s.rng.Float64()*2-1)*s.cfg.Step)
		if next <= 0 {
			next = p
		}
		s.prices[sym] = next
	}
}

// Run steps the walk every interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// SetDown makes every price endpoint answer 503, for exercising the feed
// breakers and fallback.
func (s *Simulator) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
	s.log.Info("outage toggled", "down", down)
}

func (s *Simulator) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Handler routes the simulated provider endpoints.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", s.handleBinance)
	mux.HandleFunc("/api/v3/simple/price", s.handleCoinGecko)
	mux.HandleFunc("/sim/outage", s.handleOutage)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pricesim"})
	})
	return mux
}

func (s *Simulator) handleBinance(w http.ResponseWriter, r *http.Request) {
	if s.isDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": -1001, "msg": "Simulated outage."})
		return
	}
	sym, err := model.NormalizeSymbol(r.URL.Query().Get("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": -1121, "msg": "Invalid symbol."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"symbol": sym,
		"price":  strconv.FormatFloat(s.Price(sym), 'f', 8, 64),
	})
}

func (s *Simulator) handleCoinGecko(w http.ResponseWriter, r *http.Request) {
	if s.isDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "simulated outage"})
		return
	}
	out := make(map[string]map[string]float64)
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		id = strings.TrimSpace(id)
		sym, ok := feed.SymbolForCoin(id)
		if !ok {
			continue
		}
		out[id] = map[string]float64{"usd": s.Price(sym)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Simulator) handleOutage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	down := r.URL.Query().Get("down")
	s.SetDown(down == "1" || down == "true")
	writeJSON(w, http.StatusOK, map[string]bool{"down": s.isDown()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
