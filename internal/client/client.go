// Package client talks to the fxdesk HTTP API and polls it for rates.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/xtrntr/fxdesk/internal/models"
)

// APIError is a non-success response from the API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	return e.Status >= http.StatusInternalServerError
}

// Session is a logged in user
type Session struct {
	Token string
	User  models.PublicUser
}

// TradeRequest is an order to submit
type TradeRequest struct {
	Pair   string  `json:"pair"`
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
	Price  float64 `json:"price"`
}

// Client calls the API. It remembers the token from the last successful
// register or login and sends it on authenticated calls.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for baseURL
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type response struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   string             `json:"error"`
	Token   string             `json:"token"`
	User    *models.PublicUser `json:"user"`
}

// Register creates an account and keeps its token
func (c *Client) Register(ctx context.Context, username, email, password string) (*Session, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.session(ctx, "/auth/register", body)
}

// Login signs in and keeps the token
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.session(ctx, "/auth/login", body)
}

// Rates fetches the latest snapshot
func (c *Client) Rates(ctx context.Context) (models.RateSnapshot, error) {
	var snap models.RateSnapshot
	if err := c.call(ctx, http.MethodGet, "/trades/rates", nil, false, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ExecuteTrade submits an order for the logged in user
func (c *Client) ExecuteTrade(ctx context.Context, order TradeRequest) (*models.Trade, error) {
	var trade models.Trade
	if err := c.call(ctx, http.MethodPost, "/trades", order, true, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

// History lists the logged in user's trades
func (c *Client) History(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	if err := c.call(ctx, http.MethodGet, "/trades/history", nil, true, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) session(ctx context.Context, path string, body interface{}) (*Session, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, fmt.Errorf("incomplete auth response from %s", path)
	}
	c.SetToken(resp.Token)
	return &Session{Token: resp.Token, User: *resp.User}, nil
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, authed bool, out interface{}) error {
	resp, err := c.do(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, authed bool) (*response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token())
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if httpResp.StatusCode >= http.StatusBadRequest {
			return nil, &APIError{Status: httpResp.StatusCode, Message: http.StatusText(httpResp.StatusCode)}
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if httpResp.StatusCode >= http.StatusBadRequest || !resp.Success {
		return nil, &APIError{Status: httpResp.StatusCode, Message: resp.Error}
	}
	return &resp, nil
}
