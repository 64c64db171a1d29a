package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/xtrntr/fxdesk/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string, maxConns int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// InsertUser inserts a new user
func (db *DB) InsertUser(ctx context.Context, user *models.User) error {
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (id, username, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING created_at",
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt).Scan(&user.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return nil
}

// FindUserByEmail retrieves a user by email
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.findUser(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1", email)
}

// FindUserByID retrieves a user by id
func (db *DB) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.findUser(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1", id)
}

func (db *DB) findUser(ctx context.Context, query, arg string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// AppendTrade inserts an executed trade
func (db *DB) AppendTrade(ctx context.Context, trade *models.Trade) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO trades (id, user_id, pair, amount, side, price, executed_at, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		trade.ID, trade.UserID, trade.Pair, trade.Amount, string(trade.Side), trade.Price, trade.Timestamp, string(trade.Status))
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// ListTradesByUser retrieves all trades for a user in insertion order
func (db *DB) ListTradesByUser(ctx context.Context, userID string) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, pair, amount, side, price, executed_at, status FROM trades WHERE user_id = $1 ORDER BY seq",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		var (
			trade        models.Trade
			side, status string
		)
		if err := rows.Scan(&trade.ID, &trade.UserID, &trade.Pair, &trade.Amount, &side, &trade.Price, &trade.Timestamp, &status); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.Side = models.Side(side)
		trade.Status = models.TradeStatus(status)
		trade.Timestamp = trade.Timestamp.UTC()
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
