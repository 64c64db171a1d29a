package client

import (
	"context"
	"iter"
	"time"

	"github.com/xtrntr/fxdesk/internal/models"
	"github.com/xtrntr/fxdesk/internal/presenter"
)

// DefaultPollInterval is how often the rates are refreshed
const DefaultPollInterval = 5 * time.Second

// RateFetcher returns the latest rates
type RateFetcher interface {
	Rates(ctx context.Context) (models.RateSnapshot, error)
}

// Poller fetches rates on an interval and hands the presented quotes to OnQuotes
type Poller struct {
	Client    RateFetcher
	Interval  time.Duration
	Presenter *presenter.Presenter
	OnQuotes  func(iter.Seq[presenter.Quote])
	OnError   func(error)
}

// Run polls immediately and then on every tick until ctx is cancelled.
// A failed poll is reported to OnError and polling continues.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if p.Presenter == nil {
		p.Presenter = presenter.New()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snap, err := p.Client.Rates(ctx)
	if err != nil {
		if ctx.Err() == nil && p.OnError != nil {
			p.OnError(err)
		}
		return
	}
	quotes := p.Presenter.Update(snap)
	if p.OnQuotes != nil {
		p.OnQuotes(quotes)
	}
}
