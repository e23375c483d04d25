package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	// DatabaseURL selects Postgres. Empty runs on the in-memory store.
	DatabaseURL   string
	ServerAddr    string `default:"0.0.0.0:8080" validate:"required,hostname_port"`
	MigrationsDir string `default:"internal/migrations"`

	// OperatorKey guards the token credit route. Empty disables it.
	OperatorKey string

	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	KafkaBrokers     []string `validate:"dive,hostname_port"`
	KafkaTopic       string   `default:"tradeduel.challenge-events"`
	KafkaCompression string   `default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	MinBet                int64         `default:"10" validate:"gt=0"`
	DefaultInitialBalance string        `default:"1000" validate:"numeric"`
	PendingTTL            time.Duration `default:"24h" validate:"gt=0"`
	LockTimeout           time.Duration `default:"2s" validate:"gt=0"`
	StatsCacheTTL         time.Duration `default:"5m" validate:"gt=0"`

	SweepPendingInterval time.Duration `default:"5m" validate:"gt=0"`
	SweepActiveInterval  time.Duration `default:"1m" validate:"gt=0"`
	SweepBatchSize       int           `default:"50" validate:"gt=0"`

	ShutdownTimeout time.Duration `default:"10s" validate:"gt=0"`
	LogLevel        string        `default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat       string        `default:"json" validate:"oneof=json console"`
}

// Load reads configuration from the environment, after a best-effort .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.MigrationsDir = getenv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.OperatorKey = os.Getenv("OPERATOR_KEY")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = parseInt(os.Getenv("REDIS_DB"), cfg.RedisDB)

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = getenv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaCompression = strings.ToLower(getenv("KAFKA_COMPRESSION", cfg.KafkaCompression))

	cfg.MinBet = int64(parseInt(os.Getenv("MIN_BET"), int(cfg.MinBet)))
	cfg.DefaultInitialBalance = getenv("DEFAULT_INITIAL_BALANCE", cfg.DefaultInitialBalance)
	cfg.PendingTTL = parseDuration(os.Getenv("PENDING_TTL"), cfg.PendingTTL)
	cfg.LockTimeout = parseDuration(os.Getenv("LOCK_TIMEOUT"), cfg.LockTimeout)
	cfg.StatsCacheTTL = parseDuration(os.Getenv("STATS_CACHE_TTL"), cfg.StatsCacheTTL)

	cfg.SweepPendingInterval = parseDuration(os.Getenv("SWEEP_PENDING_INTERVAL"), cfg.SweepPendingInterval)
	cfg.SweepActiveInterval = parseDuration(os.Getenv("SWEEP_ACTIVE_INTERVAL"), cfg.SweepActiveInterval)
	cfg.SweepBatchSize = parseInt(os.Getenv("SWEEP_BATCH_SIZE"), cfg.SweepBatchSize)

	cfg.ShutdownTimeout = parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), cfg.ShutdownTimeout)
	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getenv("LOG_FORMAT", cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
