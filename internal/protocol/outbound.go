package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// HistoryEntry is one finished or running game as shown in match history.
// PlayerO is nil for a game that never got an opponent.
type HistoryEntry struct {
	ID          int64         `json:"id"`
	PlayerXID   int64         `json:"playerXId"`
	PlayerOID   *int64        `json:"playerOId"`
	WinnerID    *int64        `json:"winnerId"`
	IsDraw      bool          `json:"isDraw"`
	BoardState  string        `json:"boardState"`
	Moves       int           `json:"moves"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt"`
	PlayerX     *storage.User `json:"playerX"`
	PlayerO     *storage.User `json:"playerO"`
	Board       engine.Board  `json:"board"`
}

// NewHistoryEntry expands rec with its players and the parsed board.
//
// Postcondition: Returns an error if rec.Board is not a valid board encoding.
func NewHistoryEntry(rec storage.GameRecord, playerX, playerO *storage.User) (HistoryEntry, error) {
	var board engine.Board
	if rec.Board != "" {
		if err := json.Unmarshal([]byte(rec.Board), &board); err != nil {
			return HistoryEntry{}, fmt.Errorf("game %d board: %w", rec.ID, err)
		}
	}
	h := HistoryEntry{
		ID:          rec.ID,
		PlayerXID:   rec.PlayerXID,
		IsDraw:      rec.IsDraw,
		BoardState:  rec.Board,
		Moves:       rec.Moves,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
		PlayerX:     playerX,
		PlayerO:     playerO,
		Board:       board,
	}
	if rec.PlayerOID != 0 {
		id := rec.PlayerOID
		h.PlayerOID = &id
	}
	if rec.WinnerID != 0 {
		id := rec.WinnerID
		h.WinnerID = &id
	}
	return h, nil
}

// Encode wraps payload in an envelope of type t.
func Encode(t Type, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	data, err := json.Marshal(Envelope{Type: t, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", t, err)
	}
	return data, nil
}

// UserInfo encodes the authenticated user's profile.
func UserInfo(u storage.User) ([]byte, error) {
	return Encode(TypeUserInfo, u)
}

// GameStateUpdate encodes a session snapshot.
func GameStateUpdate(s match.Session) ([]byte, error) {
	return Encode(TypeGameStateUpdate, s)
}

// OnlinePlayers encodes the presence list. A nil list encodes as [].
func OnlinePlayers(players []session.OnlinePlayer) ([]byte, error) {
	if players == nil {
		players = []session.OnlinePlayer{}
	}
	return Encode(TypeOnlinePlayers, players)
}

// MatchHistory encodes a user's recent games. A nil list encodes as [].
func MatchHistory(entries []HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return Encode(TypeMatchHistory, entries)
}

// LeaderboardUpdate encodes leaderboard rows. A nil list encodes as [].
func LeaderboardUpdate(rows []storage.PlayerStats) ([]byte, error) {
	if rows == nil {
		rows = []storage.PlayerStats{}
	}
	return Encode(TypeLeaderboardUpdate, rows)
}

// Error encodes a human-readable error addressed to one channel.
func Error(msg string) []byte {
	// a string payload always marshals
	data, _ := Encode(TypeError, msg)
	return data
}
