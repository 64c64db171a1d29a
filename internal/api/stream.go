package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RateStream pushes rate snapshots to websocket subscribers
type RateStream struct {
	rates    Rates
	interval time.Duration
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewRateStream creates a stream that refreshes every interval
func NewRateStream(rates Rates, interval time.Duration, log *logrus.Logger) *RateStream {
	return &RateStream{
		rates:    rates,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			// tokens travel in headers, not cookies, so cross-origin subscribers are fine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and keeps it subscribed until the peer goes away
func (s *RateStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	// the new subscriber gets a snapshot straight away
	if data, ok := s.snapshot(r.Context()); ok {
		if err := client.send(data); err != nil {
			s.drop(client)
			return
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(client)
			return
		}
	}
}

// Run broadcasts a snapshot every interval until ctx is done
func (s *RateStream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if data, ok := s.snapshot(ctx); ok {
				s.broadcast(data)
			}
		}
	}
}

// Subscribers returns the number of connected clients
func (s *RateStream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *RateStream) snapshot(ctx context.Context) ([]byte, bool) {
	snap, err := s.rates.Latest(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Skipping rate broadcast")
		return nil, false
	}
	data, err := json.Marshal(envelope{Success: true, Data: snap})
	if err != nil {
		s.log.WithError(err).Error("Failed to marshal rates")
		return nil, false
	}
	return data, true
}

func (s *RateStream) broadcast(data []byte) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(data); err != nil {
			s.log.WithError(err).Debug("Dropping rate subscriber")
			s.drop(client)
		}
	}
}

func (s *RateStream) drop(client *wsClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	client.conn.Close()
}

func (s *RateStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.conn.Close()
		delete(s.clients, client)
	}
}
