package models

import (
	"strings"
	"time"
)

// User represents a registered user
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// PublicUser is the part of a user returned to clients
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public strips the password hash
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalises a client supplied side, case-insensitively
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// TradeStatus is the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
)

// Trade represents an executed trade. It is never modified after it is recorded.
type Trade struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Pair      string      `json:"pair"`
	Amount    float64     `json:"amount"`
	Side      Side        `json:"type"`
	Price     float64     `json:"price"`
	Timestamp time.Time   `json:"timestamp"`
	Status    TradeStatus `json:"status"`
}

// RateSnapshot maps a currency pair (BASE/QUOTE) to its price
type RateSnapshot map[string]float64

// Clone returns an independent copy of the snapshot
func (s RateSnapshot) Clone() RateSnapshot {
	out := make(RateSnapshot, len(s))
	for pair, price := range s {
		out[pair] = price
	}
	return out
}
