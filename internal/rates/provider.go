package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"

	"github.com/xtrntr/fxdesk/internal/models"
)

// Provider is an upstream source of quotes
type Provider interface {
	Rates(ctx context.Context) (models.RateSnapshot, error)
}

// DefaultBaseRates are the quotes served by the simulated provider
var DefaultBaseRates = models.RateSnapshot{
	"EUR/USD": 1.1234,
	"GBP/USD": 1.3456,
	"USD/JPY": 110.23,
	"USD/CHF": 0.9234,
	"AUD/USD": 0.7423,
	"USD/CAD": 1.2345,
}

// BaseRatesFor picks the simulated base price of each pair
func BaseRatesFor(pairs []string) (models.RateSnapshot, error) {
	out := make(models.RateSnapshot, len(pairs))
	for _, pair := range pairs {
		price, ok := DefaultBaseRates[pair]
		if !ok {
			return nil, fmt.Errorf("no simulated rate for pair %q", pair)
		}
		out[pair] = price
	}
	return out, nil
}

// SimulatedProvider serves a deterministic set of quotes. With a non-zero
// volatility every call moves each price by a seeded random walk step.
type SimulatedProvider struct {
	mu         sync.Mutex
	current    models.RateSnapshot
	volatility float64
	rng        *rand.Rand
}

// NewSimulatedProvider creates a provider starting at base
func NewSimulatedProvider(base models.RateSnapshot, volatility float64, seed int64) *SimulatedProvider {
	return &SimulatedProvider{
		current:    base.Clone(),
		volatility: volatility,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Rates returns the next snapshot
func (p *SimulatedProvider) Rates(ctx context.Context) (models.RateSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.volatility > 0 {
		// map order is random, so walk the pairs in a fixed order to keep the sequence reproducible
		for _, pair := range sortedPairs(p.current) {
			step := 1 + p.volatility*(2*p.rng.Float64()-1)
			next := math.Round(p.current[pair]*step*1e4) / 1e4
			if next > 0 {
				p.current[pair] = next
			}
		}
	}
	return p.current.Clone(), nil
}

// HTTPProvider fetches quotes from an upstream JSON endpoint of the form
// {"rates": {"EUR/USD": 1.1}}
type HTTPProvider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPProvider creates a provider for url. The API key, if any, is sent as X-API-Key.
func NewHTTPProvider(url, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{url: url, apiKey: apiKey, client: client}
}

// Rates fetches the current quotes
func (p *HTTPProvider) Rates(ctx context.Context) (models.RateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates upstream returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates models.RateSnapshot `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	return body.Rates, nil
}
