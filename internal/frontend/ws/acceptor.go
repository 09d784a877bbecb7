package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

// Acceptor listens on the configured HTTP address and serves root, which
// routes WebSocket upgrades to sockets. It implements server.Service.
type Acceptor struct {
	cfg     config.ServerConfig
	root    http.Handler
	sockets *Handler
	logger  *zap.Logger

	listener net.Listener
	srv      *http.Server
	mu       sync.Mutex
	running  bool
	stopped  bool
}

// NewAcceptor creates an acceptor.
//
// Precondition: root, sockets and logger must be non-nil; root must route
// cfg.WSPath to sockets.
// Postcondition: Returns an Acceptor ready to be started with Start.
func NewAcceptor(cfg config.ServerConfig, root http.Handler, sockets *Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		root:    root,
		sockets: sockets,
		logger:  logger,
	}
}

// Start listens and serves until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: Returns nil after a clean Stop, or the listen/serve error.
func (a *Acceptor) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.root,
		ReadHeaderTimeout: a.cfg.ReadTimeout,
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.listener = listener
	a.srv = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("http acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("ws_path", a.cfg.WSPath),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, then closes every WebSocket connection
// and waits for their pumps to exit. A Start that has not begun serving yet
// returns immediately.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if !a.running {
		return
	}
	a.running = false

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	a.sockets.Close()

	a.logger.Info("http acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently serving.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
