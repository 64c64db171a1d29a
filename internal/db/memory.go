package db

import (
	"context"
	"sync"

	"github.com/xtrntr/fxdesk/internal/models"
)

// Memory is a process-local Store. A single lock serialises every mutation,
// so the email check and the insert happen atomically.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	byEmail map[string]string
	trades  map[string][]models.Trade
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		trades:  make(map[string][]models.Trade),
	}
}

// InsertUser stores a copy of user
func (m *Memory) InsertUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[user.Email]; taken {
		return ErrDuplicateEmail
	}
	u := *user
	m.users[u.ID] = &u
	m.byEmail[u.Email] = u.ID
	return nil
}

// FindUserByEmail retrieves a user by login email
func (m *Memory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// FindUserByID retrieves a user by identifier
func (m *Memory) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// AppendTrade records a trade for an existing user
func (m *Memory) AppendTrade(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[trade.UserID]; !ok {
		return ErrNotFound
	}
	m.trades[trade.UserID] = append(m.trades[trade.UserID], *trade)
	return nil
}

// ListTradesByUser returns a copy of the user's trades in insertion order
func (m *Memory) ListTradesByUser(ctx context.Context, userID string) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trades := m.trades[userID]
	out := make([]models.Trade, len(trades))
	copy(out, trades)
	return out, nil
}

// Close is a no-op
func (m *Memory) Close(ctx context.Context) error {
	return nil
}
