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
	natsclient "github.com/admetry-labs/admetry/common/messaging/nats"
	"github.com/admetry-labs/admetry/internal/gateway/handlers"
	"github.com/admetry-labs/admetry/internal/gateway/publisher"
	"github.com/admetry-labs/admetry/internal/gateway/ratelimit"
	"github.com/admetry-labs/admetry/internal/gateway/server"
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
	).With(logging.Service("gateway"))
	logging.SetDefault(logger)

	logger.Info("starting gateway",
		logging.Int("port", cfg.Gateway.Server.Port),
		logging.String("nats_url", cfg.NATS.URL))

	// Connect to NATS and provision the streams before accepting traffic
	jsClient, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "admetry-gateway",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jsClient.Drain()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pub, err := publisher.New(startCtx, jsClient, cfg.Gateway.Ingestion.PublishTimeout, logger)
	startCancel()
	if err != nil {
		log.Fatalf("Failed to initialize publisher: %v", err)
	}

	var limiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Gateway.Ingestion.RateLimitEnabled {
		limiter, err = ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Gateway.Ingestion.RateLimitRequests,
			cfg.Gateway.Ingestion.RateLimitWindow,
		)
		if err != nil {
			logger.Warn("rate limiter unavailable, continuing without rate limiting", logging.Error(err))
			limiter = &ratelimit.NoOpRateLimiter{}
		}
	} else {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	defer limiter.Close()

	handler := handlers.NewEventHandler(pub, limiter, cfg.Gateway.Ingestion.MaxEventSize, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Gateway.Server.ReadTimeout,
		WriteTimeout: cfg.Gateway.Server.WriteTimeout,
		IdleTimeout:  cfg.Gateway.Server.IdleTimeout,
	}

	go func() {
		logger.Info("gateway listening", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("gateway stopped")
}
