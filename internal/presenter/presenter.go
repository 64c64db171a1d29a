// Package presenter turns successive rate snapshots into per-pair quotes with
// the change since the previous snapshot. It only affects display; losing its
// state costs one missing delta.
package presenter

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/xtrntr/fxdesk/internal/models"

	"github.com/shopspring/decimal"
)

// Direction classifies a price change
type Direction string

const (
	Up        Direction = "up"
	Down      Direction = "down"
	Unchanged Direction = "unchanged"
)

// Quote describes one pair for display
type Quote struct {
	Pair  string
	Price float64
	// Delta is the exact change since the previous snapshot. Only meaningful when HasDelta is set.
	Delta     decimal.Decimal
	HasDelta  bool
	Direction Direction
}

func (q Quote) String() string {
	line := fmt.Sprintf("%-8s %s", q.Pair, decimal.NewFromFloat(q.Price).StringFixed(4))
	if !q.HasDelta {
		return line
	}
	switch q.Direction {
	case Up:
		return line + "  ▲ " + q.Delta.Abs().StringFixed(4)
	case Down:
		return line + "  ▼ " + q.Delta.Abs().StringFixed(4)
	default:
		return line + "    " + q.Delta.StringFixed(4)
	}
}

// Presenter remembers the last snapshot it was given
type Presenter struct {
	mu   sync.Mutex
	prev models.RateSnapshot
}

// New creates a presenter with no previous snapshot
func New() *Presenter {
	return &Presenter{}
}

// Update records snap as the latest snapshot and returns its quotes, sorted by
// pair. The sequence is computed on demand and yields the same quotes every
// time it is ranged over.
func (p *Presenter) Update(snap models.RateSnapshot) iter.Seq[Quote] {
	curr := snap.Clone()

	p.mu.Lock()
	prev := p.prev
	p.prev = curr
	p.mu.Unlock()

	pairs := make([]string, 0, len(curr))
	for pair := range curr {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	return func(yield func(Quote) bool) {
		for _, pair := range pairs {
			if !yield(quote(pair, prev, curr)) {
				return
			}
		}
	}
}

// Reset forgets the previous snapshot, so the next update carries no deltas
func (p *Presenter) Reset() {
	p.mu.Lock()
	p.prev = nil
	p.mu.Unlock()
}

func quote(pair string, prev, curr models.RateSnapshot) Quote {
	q := Quote{Pair: pair, Price: curr[pair], Direction: Unchanged}

	old, ok := prev[pair]
	if !ok {
		return q
	}

	// NewFromFloat uses the shortest decimal form, so 1.12 - 1.10 is exactly 0.02
	q.Delta = decimal.NewFromFloat(q.Price).Sub(decimal.NewFromFloat(old))
	q.HasDelta = true
	switch q.Delta.Sign() {
	case 1:
		q.Direction = Up
	case -1:
		q.Direction = Down
	}
	return q
}
