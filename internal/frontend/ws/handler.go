// Package ws accepts WebSocket connections and pumps frames between each
// socket and the session coordinator.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

// Coordinator receives the lifecycle and inbound frames of every connection.
type Coordinator interface {
	Connect(ch session.Channel)
	Disconnect(ctx context.Context, channelID string)
	HandleMessage(ctx context.Context, channelID string, raw []byte)
}

// Handler upgrades HTTP requests to WebSocket connections and runs a read
// and a write pump for each one.
type Handler struct {
	cfg      config.ServerConfig
	coord    Coordinator
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// NewHandler creates a Handler.
//
// Precondition: coord and logger must be non-nil.
func NewHandler(cfg config.ServerConfig, coord Coordinator, logger *zap.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cfg:    cfg,
		coord:  coord,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*conn]struct{}),
	}
}

// ServeHTTP upgrades the request and starts the connection pumps.
// Requests arriving after Close get 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &conn{
		h:      h,
		ws:     ws,
		out:    session.NewOutbox(h.cfg.OutboxSize),
		remote: r.RemoteAddr,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.conns[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info("websocket connected",
		zap.String("channel", c.out.ID()),
		zap.String("remote_addr", c.remote),
	)
	h.coord.Connect(c.out)

	go c.writePump()
	go c.readPump()
}

// Count returns the number of open connections.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close refuses new upgrades, closes every open socket and waits for all
// pumps to exit. Each closed connection is disconnected from the
// coordinator before Close returns.
//
// Postcondition: Count() == 0.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeSocket()
	}
	h.wg.Wait()
	h.cancel()
}

func (h *Handler) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// writeWait bounds a single frame write when no write timeout is configured.
const writeWait = 10 * time.Second

func (h *Handler) writeTimeout() time.Duration {
	if h.cfg.WriteTimeout > 0 {
		return h.cfg.WriteTimeout
	}
	return writeWait
}
