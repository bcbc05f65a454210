// cmd/trader runs the single-symbol simulated trader: the ingestion loop,
// periodic model retraining and the HTTP/WebSocket serving layer.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-simv1/config"
	"trading-simv1/internal/api"
	"trading-simv1/internal/breaker"
	"trading-simv1/internal/decision"
	"trading-simv1/internal/feed"
	"trading-simv1/internal/logger"
	"trading-simv1/internal/metrics"
	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/notification"
	"trading-simv1/internal/portfolio"
	"trading-simv1/internal/state"
	"trading-simv1/internal/status"
	redisstore "trading-simv1/internal/store/redis"
	sqlitestore "trading-simv1/internal/store/sqlite"
	"trading-simv1/internal/trader"
)

func main() {
	cfg := config.Load()
	log := logger.InitWithFile("trader", logger.ParseLevel(cfg.LogLevel), logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	log.Info("starting", "http_addr", cfg.HTTPAddr, "interval", cfg.Interval, "model_kind", cfg.ModelKind, "decision_source", cfg.DecisionSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("trader exited", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// ── Storage ──
	db, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath, KeepArtifacts: cfg.KeepArtifacts})
	if err != nil {
		return err
	}
	defer db.Close()
	health.SetSQLiteOK(true)

	rdb, pub := connectRedis(cfg, m, log)
	if rdb != nil {
		defer rdb.Close()
	}
	health.SetRedisEnabled(rdb != nil)
	health.StartLivenessChecker(ctx, rdb, db.DB(), 15*time.Second)

	// ── Status ──
	var statusStore model.StatusStore = status.NewFileStore(cfg.StatusFile)
	if cfg.StatusBackend == "redis" {
		if rdb == nil {
			log.Warn("STATUS_BACKEND=redis needs REDIS_ADDR, using the status file", "path", cfg.StatusFile)
		} else {
			statusStore = redisstore.NewStatusStore(rdb, "")
		}
	}
	statusSvc := status.NewService(statusStore)
	shared := state.New()
	statusSvc.OnChange(shared.SetStatus)
	initial, err := statusSvc.Load(ctx)
	if err != nil {
		return err
	}
	shared.SetStatus(initial)

	// ── Alerts ──
	notifier := notification.NewAsync(buildNotifier(cfg), 15*time.Second)

	// ── Wallet ──
	sinks := portfolio.MultiSink{db, notification.TradeAlerts{N: notifier}}
	var publisher model.LatestPublisher
	if pub != nil {
		sinks = append(sinks, pub)
		publisher = pub
	}
	wallet := portfolio.NewWallet(portfolio.Config{
		StartingBalance: cfg.StartingBalance,
		Fee:             cfg.Fee,
		TradeFraction:   initial.TradeFraction,
	}, sinks)
	if sum, err := db.LedgerSummary(ctx); err != nil {
		log.Warn("trade journal unreadable, starting from a fresh wallet", "error", err)
	} else if err := wallet.Restore(sum); err != nil {
		log.Warn("trade journal rejected, starting from a fresh wallet", "error", err)
	} else if sum.Last != nil {
		snap := wallet.Snapshot(0)
		log.Info("wallet restored from journal",
			"trades", sum.Trades, "balance", snap.Balance, "position", snap.PositionQty, "symbol", wallet.Symbol())
	}

	// ── Decision engine ──
	dcfg := decision.DefaultConfig()
	if src, ok := decision.ParseSource(cfg.DecisionSource); ok {
		dcfg.Source = src
	} else {
		log.Warn("unknown DECISION_SOURCE, using rules", "value", cfg.DecisionSource)
	}
	dcfg.CooldownTicks = cfg.CooldownTicks
	dcfg.MinHold = cfg.MinHold
	dcfg.MomentumThreshold = cfg.MomentumThreshold
	dcfg.MACDDeadband = cfg.MACDDeadband
	engine := decision.NewEngine(dcfg)

	// ── Model ──
	kind, err := ml.ParseKind(cfg.ModelKind)
	if err != nil {
		return err
	}
	predictor := ml.NewPredictor()
	if err := predictor.Load(ctx, db); err != nil {
		log.Warn("no usable model artifact, predictions will HOLD until the first retrain", "error", err)
	}
	health.SetModelReady(predictor.Ready())
	trainer := ml.NewTrainer(ml.TrainerConfig{
		Interval:     cfg.TrainInterval,
		MinRows:      cfg.TrainMinRows,
		HistoryLimit: cfg.HistoryLimit,
		Kind:         kind,
		Seed:         cfg.ModelSeed,
	}, db, db, predictor)

	// ── Price feed ──
	fd := feed.New(feed.Config{
		BinanceURL:   cfg.BinanceURL,
		CoinGeckoURL: cfg.CoinGeckoURL,
		Timeout:      cfg.FetchTimeout,
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	fd.OnError(func(provider string, err error) {
		m.FeedErrors.WithLabelValues(provider).Inc()
	})
	fd.OnBreakerChange(func(name string, from, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		notifier.Send(context.Background(), notification.BreakerAlert(name, from, to))
	})

	recent := logger.NewRecent(logger.DefaultRecentCap)
	runner, err := trader.New(trader.Config{
		Interval:       cfg.Interval,
		FetchTimeout:   cfg.FetchTimeout,
		BufferCapacity: cfg.BufferCapacity,
	}, trader.Deps{
		Feed:      fd,
		Status:    statusSvc,
		Training:  statusSvc,
		Dataset:   db,
		Accuracy:  db,
		Publisher: publisher,
		Wallet:    wallet,
		Engine:    engine,
		Trainer:   trainer,
		Predictor: predictor,
		State:     shared,
		Metrics:   m,
		Health:    health,
		Notifier:  notifier,
		Recent:    recent,
	})
	if err != nil {
		return err
	}

	// ── Serving layer ──
	hub := api.NewHub(shared, 300)
	hub.OnClientCount = func(n int) { m.StreamClients.Set(float64(n)) }
	go hub.Run(ctx)

	srv := api.NewServer(api.Deps{
		State:     shared,
		Status:    statusSvc,
		Trades:    db,
		Retrainer: runner,
		Metrics:   m.Handler(),
		Health:    health,
		Hub:       hub,
		Activity:  recent,
	}, cfg.APITOTPSecret)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "totp_guard", cfg.APITOTPSecret != "")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	return runner.Run(ctx)
}

// connectRedis returns nil handles when Redis is not configured or not
// reachable; the trader then runs without the Redis publisher.
func connectRedis(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*goredis.Client, *redisstore.Publisher) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Warn("redis unavailable, continuing without it", "addr", cfg.RedisAddr, "error", err)
		return nil, nil
	}
	cb := breaker.New("redis", 5, 10*time.Second)
	cb.OnStateChange = func(name string, _, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	}
	return rdb, redisstore.NewPublisher(rdb, cb)
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL, "trader"))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return n
}
