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
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/internal/reporter/handlers"
	"github.com/admetry-labs/admetry/internal/reporter/server"
	"github.com/admetry-labs/admetry/internal/reporter/service"
	"github.com/admetry-labs/admetry/internal/storage"
)

func main() {
	configDir := flag.String("config-dir", "", "directory containing config.yaml")
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
	).With(logging.Service("reporter"))
	logging.SetDefault(logger)

	logger.Info("starting reporter", logging.Int("port", cfg.Reporter.Server.Port))

	store, err := storage.NewPostgresStore(context.Background(), cfg.Database.Postgres.DSN(), cfg.Database.Postgres.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	svc := service.New(store, logger)
	handler := handlers.NewReportHandler(svc, store, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Reporter.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Reporter.Server.ReadTimeout,
		WriteTimeout: cfg.Reporter.Server.WriteTimeout,
		IdleTimeout:  cfg.Reporter.Server.IdleTimeout,
	}

	go func() {
		logger.Info("reporter listening", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down reporter")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("reporter stopped")
}
