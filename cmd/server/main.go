package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/fxdesk/internal/api"
	"github.com/xtrntr/fxdesk/internal/auth"
	"github.com/xtrntr/fxdesk/internal/config"
	"github.com/xtrntr/fxdesk/internal/db"
	"github.com/xtrntr/fxdesk/internal/ledger"
	"github.com/xtrntr/fxdesk/internal/logger"
	"github.com/xtrntr/fxdesk/internal/notify"
	"github.com/xtrntr/fxdesk/internal/rates"

	"github.com/sirupsen/logrus"
)

// Main entry point: wires storage, services and the HTTP server
func main() {
	configPath := flag.String("c", "", "Path to env file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Info("Starting fxdesk server...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close(context.Background())

	authService, err := auth.NewAuthService(store, auth.Options{
		Secret:     cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.JWTExpiration,
		BcryptCost: cfg.Auth.BcryptCost,
	}, log)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	provider, err := newProvider(cfg.Rates, log)
	if err != nil {
		log.Fatalf("Failed to initialize rates provider: %v", err)
	}
	feed := rates.NewFeed(provider, cfg.Rates.Pairs, rates.Options{
		Timeout:  cfg.Rates.Timeout,
		CacheTTL: cfg.Rates.CacheTTL,
	}, log)
	log.WithField("pairs", feed.Pairs()).Info("Rate feed initialized")

	publisher := newPublisher(cfg.Kafka, log)
	defer publisher.Close()

	tradeLedger := ledger.New(store, log,
		ledger.WithPublisher(publisher),
		ledger.WithPriceGuard(feed, cfg.Ledger.PriceTolerance),
	)

	handler := api.NewHandler(authService, tradeLedger, feed, log)
	stream := api.NewRateStream(feed, cfg.Rates.StreamInterval, log)
	go stream.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(handler, authService, stream, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("HTTP server is listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}

// openStore connects to Postgres when a URL is configured and falls back to memory otherwise
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Logger) (db.Store, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return db.NewMemory(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := db.NewDB(connectCtx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(connectCtx); err != nil {
		database.Close(context.Background())
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := database.Migrate(connectCtx); err != nil {
		database.Close(context.Background())
		return nil, err
	}
	log.Info("Database connection established")
	return database, nil
}

func newProvider(cfg config.RatesConfig, log *logrus.Logger) (rates.Provider, error) {
	if cfg.UpstreamURL != "" {
		log.WithField("url", cfg.UpstreamURL).Info("Using upstream rates provider")
		return rates.NewHTTPProvider(cfg.UpstreamURL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout}), nil
	}

	base, err := rates.BaseRatesFor(cfg.Pairs)
	if err != nil {
		return nil, err
	}
	log.WithField("volatility", cfg.Volatility).Info("Using simulated rates provider")
	return rates.NewSimulatedProvider(base, cfg.Volatility, cfg.Seed), nil
}

type publisher interface {
	ledger.Publisher
	Close() error
}

func newPublisher(cfg config.KafkaConfig, log *logrus.Logger) publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, trade events disabled")
		return notify.NopPublisher{}
	}
	return notify.NewKafkaPublisher(cfg.Brokers, cfg.Topic, cfg.NotionalThreshold, log)
}
