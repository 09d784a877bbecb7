package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/storage"
	"github.com/cory-johannsen/tictactoe/internal/storage/memory"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		WSPath:         "/ws",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 4096,
		OutboxSize:     64,
	}
}

// echoCoordinator pushes every inbound frame back to its sender.
type echoCoordinator struct {
	mu           sync.Mutex
	channels     map[string]session.Channel
	disconnected map[string]int
	panicOn      string
}

func newEchoCoordinator() *echoCoordinator {
	return &echoCoordinator{
		channels:     make(map[string]session.Channel),
		disconnected: make(map[string]int),
	}
}

func (e *echoCoordinator) Connect(ch session.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels[ch.ID()] = ch
}

func (e *echoCoordinator) Disconnect(_ context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnected[id]++
	if ch, ok := e.channels[id]; ok {
		_ = ch.Close()
	}
}

func (e *echoCoordinator) HandleMessage(_ context.Context, id string, raw []byte) {
	if e.panicOn != "" && string(raw) == e.panicOn {
		panic("boom")
	}
	e.mu.Lock()
	ch := e.channels[id]
	e.mu.Unlock()
	_ = ch.Push(append([]byte("echo:"), raw...))
}

func (e *echoCoordinator) disconnects() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.disconnected))
	for k, v := range e.disconnected {
		out[k] = v
	}
	return out
}

func startServer(t *testing.T, coord Coordinator) (*Handler, string) {
	t.Helper()
	h := NewHandler(testConfig(), coord, zaptest.NewLogger(t))
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestHandler_EchoesFrames(t *testing.T) {
	coord := newEchoCoordinator()
	_, url := startServer(t, coord)

	c := dial(t, url)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, "echo:hello", readText(t, c))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("again")))
	assert.Equal(t, "echo:again", readText(t, c))
}

func TestHandler_DisconnectsExactlyOnce(t *testing.T) {
	coord := newEchoCoordinator()
	h, url := startServer(t, coord)

	c := dial(t, url)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("x")))
	readText(t, c)
	require.NoError(t, c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = c.Close()

	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	got := coord.disconnects()
	require.Len(t, got, 1)
	for _, n := range got {
		assert.Equal(t, 1, n)
	}
}

func TestHandler_PanicKeepsConnectionOpen(t *testing.T) {
	coord := newEchoCoordinator()
	coord.panicOn = "explode"
	_, url := startServer(t, coord)

	c := dial(t, url)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("explode")))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("still here")))
	assert.Equal(t, "echo:still here", readText(t, c))
}

func TestHandler_OversizedFrameClosesConnection(t *testing.T) {
	coord := newEchoCoordinator()
	h, url := startServer(t, coord)

	c := dial(t, url)
	big := strings.Repeat("a", int(testConfig().MaxMessageSize)+1)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(big)))

	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, coord.disconnects(), 1)
}

func TestHandler_ClosedOutboxSendsCloseFrame(t *testing.T) {
	coord := newEchoCoordinator()
	_, url := startServer(t, coord)

	c := dial(t, url)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("x")))
	readText(t, c)

	coord.mu.Lock()
	for _, ch := range coord.channels {
		_ = ch.Close()
	}
	coord.mu.Unlock()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHandler_CloseDrainsConnections(t *testing.T) {
	coord := newEchoCoordinator()
	h, url := startServer(t, coord)

	for i := 0; i < 3; i++ {
		c := dial(t, url)
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("x")))
		readText(t, c)
	}
	require.Equal(t, 3, h.Count())

	h.Close()
	assert.Equal(t, 0, h.Count())
	assert.Len(t, coord.disconnects(), 3)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, c *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	for {
		var f frame
		require.NoError(t, json.Unmarshal([]byte(readText(t, c)), &f))
		if f.Type == want {
			return f.Payload
		}
	}
}

func send(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, c.WriteJSON(msg))
}

func TestHandler_PlaysGameEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := memory.NewStore()
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, storage.Credentials{Username: "alice", PasswordHash: "x"})
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, storage.Credentials{Username: "bob", PasswordHash: "x"})
	require.NoError(t, err)

	coord := gameserver.NewCoordinator(st, match.NewStore(st, logger), session.NewRegistry(),
		gameserver.TrustIdentity, gameserver.Options{}, logger)
	_, url := startServer(t, coord)

	a := dial(t, url)
	b := dial(t, url)
	send(t, a, "authenticate", map[string]any{"userId": alice.ID, "username": "alice"})
	readUntil(t, a, "userInfo")
	send(t, b, "authenticate", map[string]any{"userId": bob.ID, "username": "bob"})
	readUntil(t, b, "userInfo")

	send(t, a, "createGame", nil)
	var created struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, a, "gameStateUpdate"), &created))
	assert.Equal(t, "waiting", created.Status)

	send(t, b, "joinGame", map[string]any{"gameId": created.ID})
	readUntil(t, b, "gameStateUpdate")

	type state struct {
		Status string        `json:"status"`
		Moves  int           `json:"moves"`
		Winner *storage.User `json:"winner"`
	}
	// X takes the top row while O plays the middle row. Each mover waits
	// for its own update so turns never race.
	var last state
	for i, cell := range []int{0, 3, 1, 4, 2} {
		who := a
		if i%2 == 1 {
			who = b
		}
		send(t, who, "makeMove", map[string]any{"gameId": created.ID, "cellIndex": cell})
		for last.Moves != i+1 {
			require.NoError(t, json.Unmarshal(readUntil(t, who, "gameStateUpdate"), &last))
		}
	}

	assert.Equal(t, "completed", last.Status)
	require.NotNil(t, last.Winner)
	assert.Equal(t, alice.ID, last.Winner.ID)

	u, err := st.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Wins)
}
