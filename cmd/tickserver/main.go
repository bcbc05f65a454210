// cmd/tickserver is an offline price server.
// Serves random-walk prices in the Binance and CoinGecko REST shapes so the
// trader can run without internet access:
//
//	BINANCE_URL=http://localhost:9001 COINGECKO_URL=http://localhost:9001 go run ./cmd/trader
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address  (default: ":9001")
//	TICK_INTERVAL_MS  walk step interval milliseconds (default: "500")
//	TICK_STEP         max fractional move per step (default: "0.001")
//	TICK_SEED         random seed (default: current time)
//	LOG_LEVEL         debug, info, warn, error (default: "info")
//
// POST /sim/outage?down=1 makes every provider endpoint return 503.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trading-simv1/internal/logger"
	"trading-simv1/internal/pricesim"
)

func main() {
	_ = godotenv.Load()
	log := logger.Init("tickserver", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	interval := time.Duration(envIntOrDefault("TICK_INTERVAL_MS", 500)) * time.Millisecond

	cfg := pricesim.DefaultConfig()
	if v, err := strconv.ParseFloat(os.Getenv("TICK_STEP"), 64); err == nil && v > 0 {
		cfg.Step = v
	}
	if v, err := strconv.ParseInt(os.Getenv("TICK_SEED"), 10, 64); err == nil {
		cfg.Seed = v
	}
	sim := pricesim.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go sim.Run(ctx, interval)

	srv := &http.Server{Addr: addr, Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", addr, "interval", interval, "step", cfg.Step)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
