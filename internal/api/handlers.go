package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/auth"
	"github.com/xtrntr/fxdesk/internal/ledger"
	"github.com/xtrntr/fxdesk/internal/models"
	"github.com/xtrntr/fxdesk/internal/validation"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// upstreamRetryAfter is sent with 503 responses, matching the client poll interval
const upstreamRetryAfter = "5"

// Accounts registers and logs in users
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// Trades executes and lists trades for an authenticated user
type Trades interface {
	ExecuteTrade(ctx context.Context, userID string, order ledger.Order) (*models.Trade, error)
	History(ctx context.Context, userID string) ([]models.Trade, error)
}

// Rates serves the latest rate snapshot
type Rates interface {
	Latest(ctx context.Context) (models.RateSnapshot, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Accounts Accounts
	Trades   Trades
	Rates    Rates
	Log      *logrus.Logger
}

// NewHandler creates a new handler
func NewHandler(accounts Accounts, trades Trades, rates Rates, log *logrus.Logger) *Handler {
	return &Handler{Accounts: accounts, Trades: trades, Rates: rates, Log: log}
}

type tradeInput struct {
	Pair   string  `json:"pair" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Type   string  `json:"type" validate:"required,oneof=buy sell"`
	Price  float64 `json:"price" validate:"gt=0"`
}

var tradeMessages = validation.Messages{
	"required":   "Please provide pair, amount, type, and price",
	"amount.gt":  "Amount must be positive",
	"type.oneof": "Trade type must be either buy or sell",
	"price.gt":   "Price must be positive",
}

type envelope struct {
	Success bool               `json:"success"`
	Data    interface{}        `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
	Token   string             `json:"token,omitempty"`
	User    *models.PublicUser `json:"user,omitempty"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.Accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, http.StatusCreated, session)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// GetRates returns the latest snapshot for every configured pair
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rates.Latest(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: snap})
}

// ExecuteTrade records a trade for the authenticated user. Any userId in the body is ignored.
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.Auth(msgInvalidToken))
		return
	}

	var req struct {
		Pair   string    `json:"pair"`
		Amount flexFloat `json:"amount"`
		Type   string    `json:"type"`
		Price  flexFloat `json:"price"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Pair == "" || req.Type == "" || !req.Amount.set || !req.Price.set {
		h.writeError(w, r, apperr.Validation(tradeMessages["required"]))
		return
	}

	order := tradeInput{
		Pair:   strings.ToUpper(strings.TrimSpace(req.Pair)),
		Amount: req.Amount.value,
		Type:   strings.ToLower(strings.TrimSpace(req.Type)),
		Price:  req.Price.value,
	}
	if err := validation.Struct(order, tradeMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	trade, err := h.Trades.ExecuteTrade(r.Context(), userID, ledger.Order{
		Pair:   order.Pair,
		Amount: order.Amount,
		Side:   order.Type,
		Price:  order.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: trade})
}

// GetHistory returns the authenticated user's trades
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.Auth(msgInvalidToken))
		return
	}

	trades, err := h.Trades.History(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: trades})
}

// Health reports that the server is up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, apperr.Validation("Invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, session *auth.Session) {
	user := session.User.Public()
	writeJSON(w, status, envelope{Success: true, Token: session.Token, User: &user})
}

// writeError is the only place that turns an error into a response
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		status = http.StatusBadRequest
	case apperr.KindAuth:
		status = http.StatusUnauthorized
	case apperr.KindUpstream:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", upstreamRetryAfter)
	}

	entry := h.Log.WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithError(err).Debug("Request rejected")
	}

	writeJSON(w, status, envelope{Success: false, Error: apperr.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// flexFloat accepts a JSON number or a numeric string
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	f.value = v
	f.set = true
	return nil
}
