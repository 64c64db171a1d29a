// Package rates serves complete quote snapshots for a fixed set of currency
// pairs. A snapshot is either complete or an error; callers never see a
// partial map.
package rates

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const msgUpstream = "Failed to fetch forex rates"

// Options configures a Feed
type Options struct {
	// Timeout bounds a single upstream call
	Timeout time.Duration
	// CacheTTL is how long a snapshot is served before the upstream is asked again. Zero disables caching.
	CacheTTL time.Duration
}

// Feed serves the latest snapshot for the configured pairs
type Feed struct {
	provider Provider
	pairs    []string
	timeout  time.Duration
	ttl      time.Duration
	log      *logrus.Logger
	now      func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	cached    models.RateSnapshot
	fetchedAt time.Time
}

// NewFeed creates a feed over provider for pairs
func NewFeed(provider Provider, pairs []string, opts Options, log *logrus.Logger) *Feed {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Feed{
		provider: provider,
		pairs:    append([]string(nil), pairs...),
		timeout:  opts.Timeout,
		ttl:      opts.CacheTTL,
		log:      log,
		now:      time.Now,
	}
}

// Pairs returns the configured pairs
func (f *Feed) Pairs() []string {
	return append([]string(nil), f.pairs...)
}

// Latest returns the current snapshot. Upstream failures and timeouts are
// reported as apperr.KindUpstream and are safe to retry.
func (f *Feed) Latest(ctx context.Context) (models.RateSnapshot, error) {
	if snap, ok := f.fromCache(); ok {
		return snap, nil
	}

	// concurrent misses share one upstream call
	v, err, _ := f.group.Do("latest", func() (interface{}, error) {
		if snap, ok := f.fromCache(); ok {
			return snap, nil
		}
		return f.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(models.RateSnapshot).Clone(), nil
}

// Price returns the current price of one pair
func (f *Feed) Price(ctx context.Context, pair string) (float64, error) {
	snap, err := f.Latest(ctx)
	if err != nil {
		return 0, err
	}
	price, ok := snap[pair]
	if !ok {
		return 0, apperr.Validation("Unknown currency pair")
	}
	return price, nil
}

func (f *Feed) fromCache() (models.RateSnapshot, bool) {
	if f.ttl <= 0 {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.cached == nil || f.now().Sub(f.fetchedAt) > f.ttl {
		return nil, false
	}
	return f.cached.Clone(), true
}

type fetchResult struct {
	snap models.RateSnapshot
	err  error
}

func (f *Feed) fetch(ctx context.Context) (models.RateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	// the provider may ignore ctx, so the deadline is enforced here as well
	done := make(chan fetchResult, 1)
	go func() {
		snap, err := f.provider.Rates(ctx)
		done <- fetchResult{snap: snap, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		f.log.WithError(res.err).Warn("Error fetching forex rates")
		return nil, apperr.Upstream(msgUpstream, res.err)
	}

	snap, err := f.complete(res.snap)
	if err != nil {
		f.log.WithError(err).Warn("Incomplete forex rates from upstream")
		return nil, apperr.Upstream(msgUpstream, err)
	}

	f.mu.Lock()
	f.cached = snap
	f.fetchedAt = f.now()
	f.mu.Unlock()

	return snap.Clone(), nil
}

// complete keeps exactly the configured pairs and rejects the snapshot if any is missing or non-positive
func (f *Feed) complete(raw models.RateSnapshot) (models.RateSnapshot, error) {
	out := make(models.RateSnapshot, len(f.pairs))
	for _, pair := range f.pairs {
		price, ok := raw[pair]
		if !ok {
			return nil, fmt.Errorf("missing rate for %s", pair)
		}
		if price <= 0 {
			return nil, fmt.Errorf("non-positive rate %v for %s", price, pair)
		}
		out[pair] = price
	}
	return out, nil
}

func sortedPairs(snap models.RateSnapshot) []string {
	pairs := make([]string, 0, len(snap))
	for pair := range snap {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}
