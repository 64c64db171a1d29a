package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/auth"
	"github.com/xtrntr/fxdesk/internal/config"
	"github.com/xtrntr/fxdesk/internal/db"
	"github.com/xtrntr/fxdesk/internal/ledger"
	"github.com/xtrntr/fxdesk/internal/logger"
)

type demoUser struct {
	username string
	email    string
	password string
	orders   []ledger.Order
}

var demoUsers = []demoUser{
	{
		username: "trader1",
		email:    "trader1@example.com",
		password: "password123",
		orders: []ledger.Order{
			{Pair: "EUR/USD", Amount: 1000, Side: "buy", Price: 1.1234},
			{Pair: "USD/JPY", Amount: 500, Side: "sell", Price: 110.23},
			{Pair: "GBP/USD", Amount: 250, Side: "buy", Price: 1.3456},
		},
	},
	{
		username: "trader2",
		email:    "trader2@example.com",
		password: "password123",
		orders: []ledger.Order{
			{Pair: "AUD/USD", Amount: 2000, Side: "sell", Price: 0.7423},
			{Pair: "USD/CAD", Amount: 750, Side: "buy", Price: 1.2345},
		},
	},
}

// Seed the database with demo users and trades
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
	if cfg.Database.URL == "" {
		fmt.Println("DATABASE_URL is required to seed")
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	database, err := db.NewDB(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(context.Background())

	if err := database.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	authService, err := auth.NewAuthService(database, auth.Options{
		Secret:     cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.JWTExpiration,
		BcryptCost: cfg.Auth.BcryptCost,
	}, log)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}
	tradeLedger := ledger.New(database, log)

	for _, u := range demoUsers {
		session, err := authService.Register(ctx, u.username, u.email, u.password)
		if apperr.Is(err, apperr.KindConflict) {
			fmt.Printf("User %s already exists, skipping\n", u.email)
			continue
		}
		if err != nil {
			log.Fatalf("Failed to create %s: %v", u.email, err)
		}

		for _, order := range u.orders {
			if _, err := tradeLedger.ExecuteTrade(ctx, session.User.ID, order); err != nil {
				log.Fatalf("Failed to create trade for %s: %v", u.email, err)
			}
		}
		fmt.Printf("Created %s with %d trades\n", u.email, len(u.orders))
	}

	fmt.Println("Database seeded successfully")
}
