package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/db"
	"github.com/xtrntr/fxdesk/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const msgUnknownUser = "Unknown user"

// Publisher is told about every executed trade
type Publisher interface {
	TradeExecuted(ctx context.Context, trade models.Trade) error
}

// PriceSource supplies the live price used by the stale price guard
type PriceSource interface {
	Price(ctx context.Context, pair string) (float64, error)
}

// Order is a client request to trade
type Order struct {
	Pair   string
	Amount float64
	Side   string
	Price  float64
}

// Store holds the trades and lets the ledger confirm their owner exists
type Store interface {
	db.TradeStore
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// Option configures a Ledger
type Option func(*Ledger)

// WithPublisher sends executed trades to p
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithPriceGuard rejects orders whose price deviates from the live price by
// more than tolerance (relative). A zero tolerance leaves prices unchecked.
func WithPriceGuard(src PriceSource, tolerance float64) Option {
	return func(l *Ledger) {
		if tolerance > 0 {
			l.prices = src
			l.tolerance = tolerance
		}
	}
}

// Ledger validates and records trades. Each user's trades are append-only.
type Ledger struct {
	store     Store
	publisher Publisher
	prices    PriceSource
	tolerance float64
	log       *logrus.Logger
	now       func() time.Time
}

// New creates a ledger over store
func New(store Store, log *logrus.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ExecuteTrade validates an order and records it as executed for userID.
// userID must come from a verified token, never from the request body.
func (l *Ledger) ExecuteTrade(ctx context.Context, userID string, order Order) (*models.Trade, error) {
	if userID == "" {
		return nil, apperr.Auth("Invalid token")
	}

	pair, err := normalizePair(order.Pair)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(order.Amount) || math.IsInf(order.Amount, 0) || order.Amount <= 0 {
		return nil, apperr.Validation("Amount must be positive")
	}
	side, ok := models.ParseSide(order.Side)
	if !ok {
		return nil, apperr.Validation("Trade type must be either buy or sell")
	}
	if math.IsNaN(order.Price) || math.IsInf(order.Price, 0) || order.Price <= 0 {
		return nil, apperr.Validation("Price must be positive")
	}

	if l.prices != nil {
		if err := l.checkPrice(ctx, pair, order.Price); err != nil {
			return nil, err
		}
	}

	if _, err := l.store.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.Validation(msgUnknownUser)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate trade id: %w", err)
	}

	trade := &models.Trade{
		ID:        id.String(),
		UserID:    userID,
		Pair:      pair,
		Amount:    order.Amount,
		Side:      side,
		Price:     order.Price,
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		Status:    models.TradeStatusExecuted,
	}

	if err := l.store.AppendTrade(ctx, trade); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.Validation(msgUnknownUser)
		}
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"trade_id": trade.ID,
		"user_id":  trade.UserID,
		"pair":     trade.Pair,
		"side":     trade.Side,
		"amount":   trade.Amount,
		"price":    trade.Price,
	}).Info("Trade executed successfully")

	if l.publisher != nil {
		if err := l.publisher.TradeExecuted(ctx, *trade); err != nil {
			l.log.WithError(err).WithField("trade_id", trade.ID).Warn("Failed to publish trade event")
		}
	}

	return trade, nil
}

// History returns userID's trades in the order they were executed
func (l *Ledger) History(ctx context.Context, userID string) ([]models.Trade, error) {
	if userID == "" {
		return nil, apperr.Auth("Invalid token")
	}
	trades, err := l.store.ListTradesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade history: %w", err)
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	return trades, nil
}

func (l *Ledger) checkPrice(ctx context.Context, pair string, price float64) error {
	live, err := l.prices.Price(ctx, pair)
	if err != nil {
		return err
	}
	if math.Abs(price-live)/live > l.tolerance {
		l.log.WithFields(logrus.Fields{"pair": pair, "submitted": price, "live": live}).Warn("Rejected stale trade price")
		return apperr.Validation("Price is stale")
	}
	return nil
}

// normalizePair upper-cases a BASE/QUOTE pair and checks its shape
func normalizePair(raw string) (string, error) {
	pair := strings.ToUpper(strings.TrimSpace(raw))
	if pair == "" {
		return "", apperr.Validation("Please provide pair, amount, type, and price")
	}

	base, quote, ok := strings.Cut(pair, "/")
	if !ok || !isCurrencyCode(base) || !isCurrencyCode(quote) || base == quote {
		return "", apperr.Validation("Currency pair must look like BASE/QUOTE")
	}
	return pair, nil
}

func isCurrencyCode(s string) bool {
	if len(s) < 2 || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
