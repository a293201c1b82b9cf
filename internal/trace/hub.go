package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = time.Second

// hubClient is one connected monitor
type hubClient struct {
	ID     string
	Conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// Hub streams events as JSON text messages to every connected websocket
// client. It is both a Sink and an http.Handler.
type Hub struct {
	Upgrader websocket.Upgrader
	Logger   *log.Logger

	mu      sync.RWMutex
	clients map[string]*hubClient
}

// NewHub creates a hub with no clients
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local monitoring tool
			},
		},
		Logger:  logger,
		clients: make(map[string]*hubClient),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &hubClient{ID: uuid.NewString(), Conn: conn}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.Conn.Close()
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Write broadcasts ev to all clients. A client whose write fails is dropped.
func (h *Hub) Write(ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var lastErr error
	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = c.Conn.WriteMessage(websocket.TextMessage, msg)
		}
		c.mu.Unlock()
		if err != nil {
			lastErr = fmt.Errorf("client %s: %w", c.ID, err)
			h.drop(c)
			err = nil
		}
	}
	return lastErr
}

// Close disconnects every client
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.Conn.Close()
		}
		c.mu.Unlock()
	}
	return nil
}

// ListenAndServe serves the hub at /events on addr until ctx is done
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/events", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	h.Logger.Printf("monitor listening on ws://%s/events", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.Close()
		return srv.Shutdown(shutdownCtx)
	}
}
