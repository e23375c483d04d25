package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	httpapi "github.com/tradeduel/tradeduel/internal/api/http"
	"github.com/tradeduel/tradeduel/internal/application/challenge"
	"github.com/tradeduel/tradeduel/internal/application/ledger"
	"github.com/tradeduel/tradeduel/internal/application/stats"
	"github.com/tradeduel/tradeduel/internal/application/sweeper"
	"github.com/tradeduel/tradeduel/internal/clock"
	"github.com/tradeduel/tradeduel/internal/config"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	domainLedger "github.com/tradeduel/tradeduel/internal/domain/ledger"
	domainStats "github.com/tradeduel/tradeduel/internal/domain/stats"
	"github.com/tradeduel/tradeduel/internal/domain/event"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
	"github.com/tradeduel/tradeduel/internal/infrastructure/cache"
	"github.com/tradeduel/tradeduel/internal/infrastructure/kafka"
	"github.com/tradeduel/tradeduel/internal/infrastructure/memory"
	"github.com/tradeduel/tradeduel/internal/infrastructure/metrics"
	"github.com/tradeduel/tradeduel/internal/infrastructure/postgres"
	"github.com/tradeduel/tradeduel/internal/infrastructure/sse"
)

// storage is the repository set the services run on.
type storage struct {
	challenges domainChallenge.Repository
	trades     trade.Repository
	ledger     domainLedger.Repository
	stats      domainStats.Repository
	tx         txn.Manager
	health     httpapi.HealthCheck
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config error")
	}
	logger := cfg.Logger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage error")
	}
	defer store.close()

	recorder := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.System{}

	// cache and sweeper lease
	var (
		statsCache cache.Service = cache.NewMemoryCache()
		locker     cache.Locker
	)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(cfg.RedisAddr),
			cache.WithRedisPassword(cfg.RedisPassword),
			cache.WithRedisDB(cfg.RedisDB),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis error")
		}
		defer rc.Close()
		statsCache, locker = rc, rc
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache enabled")
	}

	// services
	sseHub := sse.NewHub()

	ledgerSvc := ledger.NewService(store.ledger, store.tx, clk, logger)
	statsSvc := stats.NewService(store.challenges, store.stats, ledgerSvc, statsCache, clk, cfg.StatsCacheTTL, logger)

	publishers := event.Fanout{sse.NewPublisher(sseHub), stats.NewInvalidator(statsSvc)}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(recorder,
			kafka.WithBrokers(cfg.KafkaBrokers...),
			kafka.WithTopic(cfg.KafkaTopic),
			kafka.WithCompression(cfg.KafkaCompression),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka error")
		}
		defer kp.Close()
		publishers = append(publishers, kp)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka publisher enabled")
	}

	initial, err := decimal.NewFromString(cfg.DefaultInitialBalance)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid DEFAULT_INITIAL_BALANCE")
	}
	challengeSvc := challenge.NewService(store.challenges, store.trades, ledgerSvc, store.tx, publishers, clk,
		challenge.Options{MinBet: cfg.MinBet, PendingTTL: cfg.PendingTTL, DefaultInitialBalance: initial},
		recorder, logger)

	sweeperSvc := sweeper.NewService(store.challenges, challengeSvc, locker, clk, sweeper.Config{
		PendingInterval: cfg.SweepPendingInterval,
		ActiveInterval:  cfg.SweepActiveInterval,
		BatchSize:       cfg.SweepBatchSize,
	}, recorder, logger)

	// API server
	apiServer := httpapi.NewServer(challengeSvc, ledgerSvc, statsSvc, sseHub, clk, recorder, promhttp.Handler(), store.health, cfg.OperatorKey, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeperSvc.Run(ctx)
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	sseHub.Stop()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	<-sweepDone
}

// openStorage connects Postgres when DATABASE_URL is set, else runs in memory.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		mem := memory.NewStore(cfg.LockTimeout)
		return &storage{
			challenges: mem.Challenges(),
			trades:     mem.Trades(),
			ledger:     mem.Ledger(),
			stats:      mem.Stats(),
			tx:         mem,
			close:      func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		challenges: postgres.NewChallengeRepository(pool),
		trades:     postgres.NewTradeRepository(pool),
		ledger:     postgres.NewLedgerRepository(pool),
		stats:      postgres.NewStatsRepository(pool),
		tx:         postgres.NewTxManager(pool, cfg.LockTimeout),
		health:     pool.Ping,
		close:      pool.Close,
	}, nil
}
