// Package config loads process configuration from the environment, after
// an optional .env file. Runtime-mutable settings (mode, symbol, trade
// fraction) live in the status store instead.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Loop
	Interval       time.Duration
	FetchTimeout   time.Duration
	BufferCapacity int

	// Price providers
	BinanceURL          string
	CoinGeckoURL        string
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// Decision engine
	DecisionSource    string // rules | model
	CooldownTicks     int
	MinHold           time.Duration
	MomentumThreshold float64
	MACDDeadband      float64

	// Wallet
	StartingBalance float64
	Fee             float64

	// Model
	ModelKind     string // gbt | forest
	TrainInterval int
	TrainMinRows  int
	HistoryLimit  int
	ModelSeed     int64
	KeepArtifacts int

	// Infrastructure
	SQLitePath    string
	StatusBackend string // file | redis
	StatusFile    string
	RedisAddr     string // empty disables Redis
	RedisPassword string
	RedisDB       int
	HTTPAddr      string
	APITOTPSecret string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load reads an optional .env file and then the environment, falling back
// to defaults for anything unset or unparsable.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env not loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() *Config {
	return &Config{
		Interval:       getDuration("TRADER_INTERVAL", time.Second),
		FetchTimeout:   getDuration("FETCH_TIMEOUT", 2500*time.Millisecond),
		BufferCapacity: getInt("BUFFER_CAPACITY", 600),

		BinanceURL:          getEnv("BINANCE_URL", "https://api.binance.com"),
		CoinGeckoURL:        getEnv("COINGECKO_URL", "https://api.coingecko.com"),
		BreakerMaxFailures:  getInt("FEED_BREAKER_FAILURES", 3),
		BreakerResetTimeout: getDuration("FEED_BREAKER_RESET", 30*time.Second),

		DecisionSource:    strings.ToLower(getEnv("DECISION_SOURCE", "rules")),
		CooldownTicks:     getInt("COOLDOWN_TICKS", 5),
		MinHold:           getDuration("MIN_HOLD", 30*time.Second),
		MomentumThreshold: getFloat("MOMENTUM_THRESHOLD", 0.001),
		MACDDeadband:      getFloat("MACD_DEADBAND", 0.05),

		StartingBalance: getFloat("STARTING_BALANCE", 10000),
		Fee:             getFloat("FEE", 0.001),

		ModelKind:     strings.ToLower(getEnv("MODEL_KIND", "gbt")),
		TrainInterval: getInt("TRAIN_INTERVAL", 50),
		TrainMinRows:  getInt("TRAIN_MIN_ROWS", 80),
		HistoryLimit:  getInt("TRAIN_HISTORY_LIMIT", 2000),
		ModelSeed:     int64(getInt("MODEL_SEED", 42)),
		KeepArtifacts: getInt("KEEP_ARTIFACTS", 5),

		SQLitePath:    getEnv("SQLITE_PATH", "data/trader.db"),
		StatusBackend: strings.ToLower(getEnv("STATUS_BACKEND", "file")),
		StatusFile:    getEnv("STATUS_FILE", "data/status.json"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		APITOTPSecret: getEnv("API_TOTP_SECRET", ""),

		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 14),
	}
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: invalid number, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

// getDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", fallback)
	return fallback
}
