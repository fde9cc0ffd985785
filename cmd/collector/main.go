package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/admetry-labs/admetry/common/config"
	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	natsclient "github.com/admetry-labs/admetry/common/messaging/nats"
	"github.com/admetry-labs/admetry/internal/collector/consumer"
	"github.com/admetry-labs/admetry/internal/collector/processor"
	"github.com/admetry-labs/admetry/internal/collector/server"
	"github.com/admetry-labs/admetry/internal/storage"
)

func main() {
	configDir := flag.String("config-dir", "", "directory containing config.yaml")
	migrationsPath := flag.String("migrations", "file://migrations", "migrations source URL")
	flag.Parse()

	if *configDir != "" {
		os.Setenv("ADMETRY_CONFIG_DIR", *configDir)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	sources := make([]events.Source, 0, len(cfg.Collector.Sources))
	for _, s := range cfg.Collector.Sources {
		sources = append(sources, events.Source(s))
	}

	logger.Info("starting collector",
		logging.Int("port", cfg.Collector.Server.Port),
		logging.String("nats_url", cfg.NATS.URL),
		logging.String("sources", fmt.Sprintf("%v", cfg.Collector.Sources)))

	connString := cfg.Database.Postgres.DSN()

	logger.Info("running database migrations")
	if err := storage.RunMigrations(*migrationsPath, connString); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := storage.NewPostgresStore(context.Background(), connString, cfg.Database.Postgres.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	jsClient, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "admetry-collector",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jsClient.Drain()

	proc := processor.New(store, logger)
	cons := consumer.New(jsClient, proc, consumer.Options{
		AckWait:       cfg.Collector.AckWait,
		MaxDeliver:    cfg.Collector.MaxDeliver,
		MaxAckPending: cfg.Collector.MaxAckPending,
		NakDelay:      cfg.Collector.NakDelay,
	}, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if err := cons.Run(runCtx, sources); err != nil {
		log.Fatalf("Failed to start consumers: %v", err)
	}

	router := server.NewRouter(jsClient, store)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Collector.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Collector.Server.ReadTimeout,
		WriteTimeout: cfg.Collector.Server.WriteTimeout,
		IdleTimeout:  cfg.Collector.Server.IdleTimeout,
	}

	go func() {
		logger.Info("collector listening", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down collector")

	// Stop consumers first so no new messages are pulled, then close HTTP
	cons.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("collector stopped")
}
