package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/fxdesk/internal/client"
	"github.com/xtrntr/fxdesk/internal/logger"
	"github.com/xtrntr/fxdesk/internal/presenter"
)

// Polls the rates endpoint and prints each pair with its change since the last poll
func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Server base URL")
	interval := flag.Duration("interval", client.DefaultPollInterval, "Poll interval")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log := logger.NewWithOutput(*level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := &client.Poller{
		Client:    client.New(*baseURL, &http.Client{Timeout: 10 * time.Second}),
		Interval:  *interval,
		Presenter: presenter.New(),
		OnQuotes: func(quotes iter.Seq[presenter.Quote]) {
			fmt.Printf("--- %s\n", time.Now().Format(time.TimeOnly))
			for q := range quotes {
				fmt.Println(q)
			}
		},
		OnError: func(err error) {
			log.WithError(err).Warn("Failed to fetch rates")
		},
	}

	if err := poller.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Poller stopped: %v", err)
	}
}
