package ws

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAcceptorStartAndStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	coord := newEchoCoordinator()
	cfg := testConfig()
	cfg.Port = 0
	cfg.ShutdownTimeout = 2 * time.Second

	sockets := NewHandler(cfg, coord, logger)
	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, sockets)
	acc := NewAcceptor(cfg, mux, sockets, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.Start()
	}()

	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "acceptor did not start in time")

	c, _, err := websocket.DefaultDialer.Dial("ws://"+acc.Addr()+cfg.WSPath, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "echo:ping", readText(t, c))

	acc.Stop()
	assert.False(t, acc.IsRunning())
	assert.Equal(t, 0, sockets.Count())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c.ReadMessage()
	assert.Error(t, err)
}

func TestAcceptorStopBeforeStart(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sockets := NewHandler(testConfig(), newEchoCoordinator(), logger)
	acc := NewAcceptor(testConfig(), sockets, sockets, logger)
	acc.Stop()
	assert.False(t, acc.IsRunning())
	assert.Empty(t, acc.Addr())
}

func TestAcceptorListenError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Host = "256.0.0.1"
	sockets := NewHandler(cfg, newEchoCoordinator(), logger)
	acc := NewAcceptor(cfg, sockets, sockets, logger)
	assert.Error(t, acc.Start())
}

func TestAcceptorStartAfterStopReturns(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Port = 0
	sockets := NewHandler(cfg, newEchoCoordinator(), logger)
	acc := NewAcceptor(cfg, sockets, sockets, logger)
	acc.Stop()

	done := make(chan error, 1)
	go func() { done <- acc.Start() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked after Stop")
	}
}
