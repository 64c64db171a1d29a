package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/auth"
	"github.com/xtrntr/fxdesk/internal/db"
	"github.com/xtrntr/fxdesk/internal/ledger"
	"github.com/xtrntr/fxdesk/internal/logger"
	"github.com/xtrntr/fxdesk/internal/models"
	"github.com/xtrntr/fxdesk/internal/rates"
	"golang.org/x/crypto/bcrypt"
)

type stubRates struct {
	snap models.RateSnapshot
	err  error
}

func (s *stubRates) Latest(ctx context.Context) (models.RateSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap.Clone(), nil
}

type testEnv struct {
	auth   *auth.AuthService
	ledger *ledger.Ledger
	rates  *stubRates
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	store := db.NewMemory()

	authService, err := auth.NewAuthService(store, auth.Options{Secret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost}, log)
	require.NoError(t, err)

	env := &testEnv{
		auth:   authService,
		ledger: ledger.New(store, log),
		rates:  &stubRates{snap: rates.DefaultBaseRates.Clone()},
	}
	handler := NewHandler(env.auth, env.ledger, env.rates, log)
	env.router = NewRouter(handler, env.auth, nil, []string{"*"})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func (e *testEnv) register(t *testing.T, username, email string) string {
	t.Helper()
	session, err := e.auth.Register(context.Background(), username, email, "secret123")
	require.NoError(t, err)
	return session.Token
}

func TestHandler_Register(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Success",
			requestBody:    map[string]interface{}{"username": "alice", "email": "alice@example.com", "password": "secret123"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Duplicate Email",
			requestBody:    map[string]interface{}{"username": "alice2", "email": "ALICE@example.com", "password": "other"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "User already exists",
		},
		{
			name:           "Missing Password",
			requestBody:    map[string]interface{}{"username": "bob", "email": "bob@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Please provide username, email and password",
		},
		{
			name:           "Invalid Body",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := env.do(t, "POST", "/auth/register", "", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, false, response["success"])
				assert.Equal(t, tt.expectedError, response["error"])
				return
			}
			assert.Equal(t, true, response["success"])
			assert.NotEmpty(t, response["token"])
			user, ok := response["user"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "alice", user["username"])
			assert.Equal(t, "alice@example.com", user["email"])
			assert.NotEmpty(t, user["id"])
			assert.NotContains(t, user, "passwordHash")
		})
	}
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Success",
			requestBody:    map[string]interface{}{"email": "alice@example.com", "password": "secret123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Wrong Password",
			requestBody:    map[string]interface{}{"email": "alice@example.com", "password": "wrong"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid credentials",
		},
		{
			name:           "Unknown Email",
			requestBody:    map[string]interface{}{"email": "nobody@example.com", "password": "secret123"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid credentials",
		},
		{
			name:           "Missing Fields",
			requestBody:    map[string]interface{}{"email": "alice@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Please provide email and password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := env.do(t, "POST", "/auth/login", "", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, response["error"])
				assert.NotContains(t, response, "token")
				return
			}
			assert.NotEmpty(t, response["token"])
		})
	}
}

func TestHandler_GetRates(t *testing.T) {
	env := newTestEnv(t)

	w, response := env.do(t, "GET", "/trades/rates", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["success"])
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, data, 6)
	assert.Equal(t, 1.1234, data["EUR/USD"])
}

func TestHandler_GetRatesUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.rates.err = apperr.Upstream("Failed to fetch forex rates", context.DeadlineExceeded)

	w, response := env.do(t, "GET", "/trades/rates", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Equal(t, false, response["success"])
	assert.Equal(t, "Failed to fetch forex rates", response["error"])
	assert.NotContains(t, response, "data")
}

func TestHandler_InternalErrorsAreHidden(t *testing.T) {
	env := newTestEnv(t)
	env.rates.err = errors.New("pq: password authentication failed for user fx")

	w, response := env.do(t, "GET", "/trades/rates", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", response["error"])
}

func TestHandler_ExecuteTrade(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice", "alice@example.com")

	tests := []struct {
		name           string
		token          string
		requestBody    interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Success",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 100, "type": "buy", "price": 1.1234},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Amount As String",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "GBP/USD", "amount": "250.5", "type": "SELL", "price": 1.3456},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Negative Amount",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": -5, "type": "buy", "price": 1.1},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Amount must be positive",
		},
		{
			name:           "Invalid Type",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 5, "type": "hold", "price": 1.1},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Trade type must be either buy or sell",
		},
		{
			name:           "Zero Amount As String",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": "0", "type": "buy", "price": 1.1},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Amount must be positive",
		},
		{
			name:           "Zero Price",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 5, "type": "sell", "price": 0},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Price must be positive",
		},
		{
			name:           "Missing Price",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 5, "type": "buy"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Please provide pair, amount, type, and price",
		},
		{
			name:           "Non Numeric Amount",
			token:          token,
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": "lots", "type": "buy", "price": 1.1},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request body",
		},
		{
			name:           "No Token",
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 5, "type": "buy", "price": 1.1},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "No token provided",
		},
		{
			name:           "Bad Token",
			token:          "not-a-jwt",
			requestBody:    map[string]interface{}{"pair": "EUR/USD", "amount": 5, "type": "buy", "price": 1.1},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := env.do(t, "POST", "/trades", tt.token, tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, false, response["success"])
				assert.Equal(t, tt.expectedError, response["error"])
				return
			}
			data, ok := response["data"].(map[string]interface{})
			require.True(t, ok)
			assert.NotEmpty(t, data["id"])
			assert.Equal(t, "executed", data["status"])
			assert.Contains(t, []interface{}{"buy", "sell"}, data["type"])
			assert.NotEmpty(t, data["timestamp"])
		})
	}

	history, err := env.ledger.History(context.Background(), mustVerify(t, env, token))
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandler_ExecuteTradeIgnoresBodyUserID(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@example.com")
	bob := env.register(t, "bob", "bob@example.com")
	bobID := mustVerify(t, env, bob)

	w, response := env.do(t, "POST", "/trades", alice, map[string]interface{}{
		"pair": "EUR/USD", "amount": 1, "type": "buy", "price": 1.1, "userId": bobID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, mustVerify(t, env, alice), data["userId"])

	bobHistory, err := env.ledger.History(context.Background(), bobID)
	require.NoError(t, err)
	assert.Empty(t, bobHistory)
}

func TestHandler_GetHistory(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@example.com")
	bob := env.register(t, "bob", "bob@example.com")

	for _, amount := range []float64{1, 2, 3} {
		w, _ := env.do(t, "POST", "/trades", alice, map[string]interface{}{"pair": "EUR/USD", "amount": amount, "type": "buy", "price": 1.1})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, _ := env.do(t, "POST", "/trades", bob, map[string]interface{}{"pair": "USD/JPY", "amount": 9, "type": "sell", "price": 110.23})
	require.Equal(t, http.StatusCreated, w.Code)

	w, response := env.do(t, "GET", "/trades/history", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	trades, ok := response["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, trades, 3)
	for i, raw := range trades {
		trade := raw.(map[string]interface{})
		assert.Equal(t, float64(i+1), trade["amount"])
		assert.Equal(t, "EUR/USD", trade["pair"])
	}

	// a user without trades gets an empty list, not null
	carol := env.register(t, "carol", "carol@example.com")
	w, response = env.do(t, "GET", "/trades/history", carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, response["data"])

	w, response = env.do(t, "GET", "/trades/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No token provided", response["error"])
}

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t)
	w, response := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["success"])
}

func TestRateStream(t *testing.T) {
	log := logger.Discard()
	source := &stubRates{snap: models.RateSnapshot{"EUR/USD": 1.1}}
	stream := NewRateStream(source, 10*time.Millisecond, log)
	handler := NewHandler(nil, nil, source, log)
	srv := httptest.NewServer(NewRouter(handler, nil, stream, []string{"*"}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/trades/rates/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the first message arrives on connect, the second from the ticker
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Success bool                `json:"success"`
			Data    models.RateSnapshot `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.True(t, msg.Success)
		assert.Equal(t, 1.1, msg.Data["EUR/USD"])
	}
	assert.Equal(t, 1, stream.Subscribers())
}

func mustVerify(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	userID, err := env.auth.Verify(token)
	require.NoError(t, err)
	return userID
}
