package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/exercisetracker/internal/config"
	"example.com/exercisetracker/internal/observability"
	"example.com/exercisetracker/internal/outbox"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()
	observability.ConfigureLogging("exercise-dlqmanager", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsAddr := cfg.MetricsAddress
	if metricsAddr == "" {
		metricsAddr = ":9103"
	}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", metricsAddr).Msg("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq manager started")

	for running := true; running; {
		select {
		case <-ctx.Done():
			log.Info().Msg("dlq manager received shutdown signal")
			running = false
		case <-ticker.C:
			requeued, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("dlq manager run failed")
			} else if requeued > 0 {
				log.Info().Int("requeued", requeued).Msg("dlq entries returned to outbox")
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
}
