package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/scheduling/internal/booking"
	"github.com/carebook/scheduling/internal/config"
	"github.com/carebook/scheduling/internal/db"
	"github.com/carebook/scheduling/internal/pricing"
	redisclient "github.com/carebook/scheduling/internal/redis"
	"github.com/carebook/scheduling/internal/schedule"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "sweep-worker").Logger()
	log.Info().Msg("sweep-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("running sweep worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	templates := schedule.NewPgRepository(pgPool)
	prices := pricing.NewPgLookup(pgPool)
	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(repo, repo, templates, prices, locker, cfg, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	started, err := svc.AutoStartSweep(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("auto-start sweep error")
	}

	swept, err := svc.NoShowSweep(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("no-show sweep error")
	}

	log.Info().
		Int("auto_started", started).
		Int("swept", swept).
		Dur("duration", time.Since(start)).
		Msg("sweep run complete")
}
