// Package memory provides an in-process implementation of storage.Store.
// It is used for local development and by tests of the layers above storage.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Store keeps users and game records in maps guarded by a single mutex.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[int64]storage.User
	games map[int64]storage.GameRecord
	nextU int64
	nextG int64
	now   func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users: make(map[int64]storage.User),
		games: make(map[int64]storage.GameRecord),
		nextU: 1,
		nextG: 1,
		now:   time.Now,
	}
}

// GetUser returns the user with the given id or storage.ErrUserNotFound.
func (s *Store) GetUser(_ context.Context, id int64) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

// GetUserByUsername matches usernames case-insensitively.
func (s *Store) GetUserByUsername(_ context.Context, username string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.findByName(username)
	if !ok {
		return storage.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) findByName(username string) (storage.User, bool) {
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, true
		}
	}
	return storage.User{}, false
}

// CreateUser inserts a user with zeroed statistics.
//
// Postcondition: Returns storage.ErrUserExists if the username is taken.
func (s *Store) CreateUser(_ context.Context, creds storage.Credentials) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findByName(creds.Username); ok {
		return storage.User{}, storage.ErrUserExists
	}
	u := storage.User{
		ID:           s.nextU,
		Username:     creds.Username,
		PasswordHash: creds.PasswordHash,
	}
	s.nextU++
	s.users[u.ID] = u
	return u, nil
}

// UpdateUserStats increments exactly one counter for the user.
func (s *Store) UpdateUserStats(_ context.Context, userID int64, outcome storage.Outcome) (storage.User, error) {
	if !outcome.Valid() {
		return storage.User{}, fmt.Errorf("unknown outcome %q", outcome)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.User{}, storage.ErrUserNotFound
	}
	switch outcome {
	case storage.OutcomeWin:
		u.Wins++
	case storage.OutcomeLoss:
		u.Losses++
	case storage.OutcomeDraw:
		u.Draws++
	}
	s.users[userID] = u
	return u, nil
}

// GetLeaderboard ranks every user by win rate, then wins.
func (s *Store) GetLeaderboard(_ context.Context, limit int) ([]storage.PlayerStats, error) {
	s.mu.RLock()
	rows := make([]storage.PlayerStats, 0, len(s.users))
	for _, u := range s.users {
		rows = append(rows, u.Stats())
	}
	s.mu.RUnlock()
	return storage.RankLeaderboard(rows, limit), nil
}

// CreateGameRecord inserts a game with an empty board. playerOID may be 0.
func (s *Store) CreateGameRecord(_ context.Context, playerXID, playerOID int64) (storage.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := storage.GameRecord{
		ID:        s.nextG,
		PlayerXID: playerXID,
		PlayerOID: playerOID,
		Board:     storage.EmptyBoard,
		CreatedAt: s.now(),
	}
	s.nextG++
	s.games[g.ID] = g
	return g, nil
}

// UpdateGameRecord applies the non-nil fields of update.
func (s *Store) UpdateGameRecord(_ context.Context, id int64, update storage.GameUpdate) (storage.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return storage.GameRecord{}, storage.ErrGameNotFound
	}
	update.Apply(&g)
	s.games[id] = g
	return g, nil
}

// GetGamesForUser returns the user's games, most recent activity first.
func (s *Store) GetGamesForUser(_ context.Context, userID int64, limit int) ([]storage.GameRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	s.mu.RLock()
	var out []storage.GameRecord
	for _, g := range s.games {
		if g.PlayerXID == userID || g.PlayerOID == userID {
			out = append(out, g)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
