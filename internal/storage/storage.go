// Package storage defines the persistence contract consumed by the game
// session store and coordinator, plus the record types shared by every
// backend (memory, postgres, redis cache).
package storage

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// ErrUserNotFound is returned when a user lookup yields no results.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when creating a user whose username is taken
// (case-insensitively).
var ErrUserExists = errors.New("user already exists")

// ErrGameNotFound is returned when a game record lookup yields no results.
var ErrGameNotFound = errors.New("game not found")

// Outcome is a per-player game result used to increment statistics.
type Outcome string

// Statistics outcomes.
const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Valid reports whether o is one of the three outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWin, OutcomeLoss, OutcomeDraw:
		return true
	}
	return false
}

// User is a registered player and their cumulative record.
// PasswordHash is never serialized.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
}

// Credentials are the inputs to CreateUser. PasswordHash must already be hashed.
type Credentials struct {
	Username     string
	PasswordHash string
}

// PlayerStats is one leaderboard row.
type PlayerStats struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	WinRate  int    `json:"winRate"`
}

// GameRecord is the persisted form of a game.
//
// PlayerOID is 0 while the game waits for an opponent; WinnerID is 0 when
// there is no winner. Board holds the JSON array text of the nine cells.
type GameRecord struct {
	ID          int64
	PlayerXID   int64
	PlayerOID   int64
	WinnerID    int64
	IsDraw      bool
	Board       string
	Moves       int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// GameUpdate carries the fields to change on a game record. Nil fields are
// left untouched.
type GameUpdate struct {
	PlayerOID   *int64
	WinnerID    *int64
	IsDraw      *bool
	Board       *string
	Moves       *int
	CompletedAt *time.Time
}

// Apply copies the non-nil fields of u onto rec.
func (u GameUpdate) Apply(rec *GameRecord) {
	if u.PlayerOID != nil {
		rec.PlayerOID = *u.PlayerOID
	}
	if u.WinnerID != nil {
		rec.WinnerID = *u.WinnerID
	}
	if u.IsDraw != nil {
		rec.IsDraw = *u.IsDraw
	}
	if u.Board != nil {
		rec.Board = *u.Board
	}
	if u.Moves != nil {
		rec.Moves = *u.Moves
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		rec.CompletedAt = &t
	}
}

// EmptyBoard is the stored form of a fresh board.
const EmptyBoard = `[null,null,null,null,null,null,null,null,null]`

// Default limits taken when callers pass a non-positive limit.
const (
	DefaultHistoryLimit     = 10
	DefaultLeaderboardLimit = 100
)

// UserStore is the user half of the persistence contract.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, creds Credentials) (User, error)
	UpdateUserStats(ctx context.Context, userID int64, outcome Outcome) (User, error)
	GetLeaderboard(ctx context.Context, limit int) ([]PlayerStats, error)
}

// GameStore is the game-record half of the persistence contract.
type GameStore interface {
	CreateGameRecord(ctx context.Context, playerXID, playerOID int64) (GameRecord, error)
	UpdateGameRecord(ctx context.Context, id int64, update GameUpdate) (GameRecord, error)
	GetGamesForUser(ctx context.Context, userID int64, limit int) ([]GameRecord, error)
}

// Store is the full persistence collaborator.
type Store interface {
	UserStore
	GameStore
}

// WinRate returns round(100*wins/total) or 0 when no games were played.
func WinRate(wins, losses, draws int) int {
	total := wins + losses + draws
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(wins) * 100 / float64(total)))
}

// Stats converts a user to a leaderboard row.
func (u User) Stats() PlayerStats {
	return PlayerStats{
		ID:       u.ID,
		Username: u.Username,
		Wins:     u.Wins,
		Losses:   u.Losses,
		Draws:    u.Draws,
		WinRate:  WinRate(u.Wins, u.Losses, u.Draws),
	}
}

// RankLeaderboard orders rows by descending win rate, then descending wins,
// then ascending id, and truncates to limit.
func RankLeaderboard(rows []PlayerStats, limit int) []PlayerStats {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	out := make([]PlayerStats, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LastActivity is the ordering key for match history: completion time when
// set, creation time otherwise.
func (g GameRecord) LastActivity() time.Time {
	if g.CompletedAt != nil {
		return *g.CompletedAt
	}
	return g.CreatedAt
}
