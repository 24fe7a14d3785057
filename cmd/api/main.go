package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/exercisetracker/internal/api"
	"example.com/exercisetracker/internal/auth"
	"example.com/exercisetracker/internal/config"
	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/observability"
	"example.com/exercisetracker/internal/outbox"
	"example.com/exercisetracker/internal/persistence/memory"
	mongostore "example.com/exercisetracker/internal/persistence/mongo"
	pgstore "example.com/exercisetracker/internal/persistence/postgres"
	httptransport "example.com/exercisetracker/internal/transport/http"
)

func main() {
	cfg := config.Load()
	observability.ConfigureLogging("exercise-api", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
		closers    []func()
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		closers = append(closers, pool.Close)
		repo = pgstore.NewRepository(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(outbox.ProducerConfig{Brokers: cfg.KafkaBrokers})
			closers = append(closers, func() { _ = producer.Close() })
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongo")
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		store := mongostore.NewRepository(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create mongo indexes")
		}
		repo = store
	case config.BackendMemory:
		repo = memory.NewRepository()
	default:
		log.Fatal().Str("backend", cfg.StoreBackend).Msg("unknown STORE_BACKEND")
	}

	service := domain.NewService(repo)

	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)
	httptransport.RegisterStatic(mux)
	if cfg.MetricsAddress == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}

	var authMiddleware httptransport.Middleware
	if cfg.AuthEnabled() {
		authMiddleware = auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths).Wrap
	} else {
		log.Warn().Msg("JWT_SECRET not set, API routes are unauthenticated")
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.RequestLogger,
		httptransport.Recover,
		httptransport.CORS(cfg.CORSAllowedOrigins),
		authMiddleware,
	))

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddress).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddress).Str("store", cfg.StoreBackend).Msg("exercise tracker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
