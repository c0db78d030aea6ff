package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/api"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/auth"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/config"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/migrate"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/outbox"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/persistence/postgres"
	httptransport "github.com/ScimanSky/swimforge-oppidum-sub001/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrate.Up(ctx, cfg.PostgresURL); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	store := postgres.NewStore(&postgres.DB{Pool: pool})

	levels, err := domain.NewLevelCatalog(domain.DefaultLevels())
	if err != nil {
		log.Fatal("level catalog invalid", zap.Error(err))
	}
	badges, err := domain.NewBadgeCatalog(domain.DefaultBadges())
	if err != nil {
		log.Fatal("badge catalog invalid", zap.Error(err))
	}

	service := domain.NewService(store, levels, badges, domain.NewScorerV1())

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, log, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLogger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("progression api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}
