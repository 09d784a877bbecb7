package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

func TestDecode_KnownTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Inbound
	}{
		{"authenticate", `{"type":"authenticate","payload":{"userId":4,"username":"alice","token":"t"}}`,
			Authenticate{UserID: 4, Username: "alice", Token: "t"}},
		{"create without payload", `{"type":"createGame"}`, CreateGame{}},
		{"create with empty payload", `{"type":"createGame","payload":{}}`, CreateGame{}},
		{"join", `{"type":"joinGame","payload":{"gameId":12}}`, JoinGame{GameID: 12}},
		{"move cell zero", `{"type":"makeMove","payload":{"gameId":3,"cellIndex":0}}`, MakeMove{GameID: 3, CellIndex: 0}},
		{"move out of range passes through", `{"type":"makeMove","payload":{"gameId":3,"cellIndex":11}}`, MakeMove{GameID: 3, CellIndex: 11}},
		{"resign", `{"type":"resignGame","payload":{"gameId":9}}`, ResignGame{GameID: 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.Type(), got.Type())
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":               `{nope`,
		"no type":                `{"payload":{}}`,
		"auth without payload":   `{"type":"authenticate"}`,
		"auth without user":      `{"type":"authenticate","payload":{"username":"x"}}`,
		"join without game":      `{"type":"joinGame","payload":{}}`,
		"join with string id":    `{"type":"joinGame","payload":{"gameId":"7"}}`,
		"move without cell":      `{"type":"makeMove","payload":{"gameId":1}}`,
		"move with null payload": `{"type":"makeMove","payload":null}`,
		"resign without game":    `{"type":"resignGame","payload":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"chat","payload":"hi"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func decodeEnvelope(t *testing.T, data []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestGameStateUpdate_Shape(t *testing.T) {
	o := storage.User{ID: 2, Username: "bob"}
	s := match.Session{
		ID:            5,
		Board:         engine.Board{engine.X, engine.Empty, engine.O},
		CurrentPlayer: engine.X,
		PlayerX:       storage.User{ID: 1, Username: "alice", PasswordHash: "secret"},
		PlayerO:       &o,
		Moves:         2,
		Status:        match.StatusInProgress,
		Version:       4,
	}
	data, err := GameStateUpdate(s)
	require.NoError(t, err)

	env := decodeEnvelope(t, data)
	assert.Equal(t, TypeGameStateUpdate, env.Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, float64(5), payload["id"])
	assert.Equal(t, "X", payload["currentPlayer"])
	assert.Equal(t, "in_progress", payload["status"])
	assert.Equal(t, []any{"X", nil, "O", nil, nil, nil, nil, nil, nil}, payload["board"])
	assert.Nil(t, payload["winner"])
	assert.NotContains(t, payload, "Version")
	assert.NotContains(t, string(data), "secret")
}

func TestError_Shape(t *testing.T) {
	assert.JSONEq(t, `{"type":"error","payload":"Not your turn"}`, string(Error("Not your turn")))
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	for _, fn := range []func() ([]byte, error){
		func() ([]byte, error) { return OnlinePlayers(nil) },
		func() ([]byte, error) { return MatchHistory(nil) },
		func() ([]byte, error) { return LeaderboardUpdate(nil) },
	} {
		data, err := fn()
		require.NoError(t, err)
		assert.Equal(t, "[]", string(decodeEnvelope(t, data).Payload))
	}
}

func TestOnlinePlayers_Shape(t *testing.T) {
	data, err := OnlinePlayers([]session.OnlinePlayer{{ID: 1, Username: "alice", InGame: true}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"onlinePlayers","payload":[{"id":1,"username":"alice","inGame":true}]}`,
		string(data))
}

func TestNewHistoryEntry(t *testing.T) {
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := storage.GameRecord{
		ID:          8,
		PlayerXID:   1,
		PlayerOID:   2,
		WinnerID:    1,
		Board:       `["X","O","X",null,null,null,null,null,null]`,
		Moves:       3,
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}
	x := &storage.User{ID: 1, Username: "alice"}
	o := &storage.User{ID: 2, Username: "bob"}

	h, err := NewHistoryEntry(rec, x, o)
	require.NoError(t, err)
	require.NotNil(t, h.PlayerOID)
	require.NotNil(t, h.WinnerID)
	assert.Equal(t, int64(2), *h.PlayerOID)
	assert.Equal(t, int64(1), *h.WinnerID)
	assert.Equal(t, engine.O, h.Board[1])
	assert.Equal(t, "bob", h.PlayerO.Username)
}

func TestNewHistoryEntry_Waiting(t *testing.T) {
	h, err := NewHistoryEntry(storage.GameRecord{ID: 1, PlayerXID: 1, Board: storage.EmptyBoard}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, h.PlayerOID)
	assert.Nil(t, h.WinnerID)
	assert.Equal(t, engine.Board{}, h.Board)
}

func TestNewHistoryEntry_BadBoard(t *testing.T) {
	_, err := NewHistoryEntry(storage.GameRecord{ID: 1, Board: `["X"]`}, nil, nil)
	assert.Error(t, err)
}
