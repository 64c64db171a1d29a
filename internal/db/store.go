package db

import (
	"context"
	"errors"

	"github.com/xtrntr/fxdesk/internal/models"
)

var (
	// ErrNotFound is returned when a user lookup misses, or a trade references an unknown user
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when inserting a user whose email is taken
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserStore holds registered users. Email is the unique login key.
type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// TradeStore is the append-only ledger of executed trades
type TradeStore interface {
	AppendTrade(ctx context.Context, trade *models.Trade) error
	// ListTradesByUser returns the user's trades in insertion order
	ListTradesByUser(ctx context.Context, userID string) ([]models.Trade, error)
}

// Store is the full persistence surface used by the server
type Store interface {
	UserStore
	TradeStore
	Close(ctx context.Context) error
}
