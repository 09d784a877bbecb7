// Package match owns the lifecycle of tic-tac-toe games: creation, joining,
// moves, resignation and completion, with each committed mutation persisted
// through a Repository before it becomes visible.
package match

import (
	"time"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Status is the lifecycle state of a game session.
type Status string

// Session states. Completed is terminal.
const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Session is one match. Values returned by the Store are copies; mutating
// them has no effect on the live session.
type Session struct {
	ID            int64         `json:"id"`
	Board         engine.Board  `json:"board"`
	CurrentPlayer engine.Mark   `json:"currentPlayer"`
	PlayerX       storage.User  `json:"playerX"`
	PlayerO       *storage.User `json:"playerO"`
	Winner        *storage.User `json:"winner"`
	IsDraw        bool          `json:"isDraw"`
	Moves         int           `json:"moves"`
	Status        Status        `json:"status"`

	// Version increments on every committed mutation.
	Version   uint64    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// MarkOf returns the mark the user plays in this session, or engine.Empty if
// the user is not a participant.
func (s Session) MarkOf(userID int64) engine.Mark {
	switch {
	case s.PlayerX.ID == userID:
		return engine.X
	case s.PlayerO != nil && s.PlayerO.ID == userID:
		return engine.O
	}
	return engine.Empty
}

// HasPlayer reports whether the user participates in the session.
func (s Session) HasPlayer(userID int64) bool {
	return s.MarkOf(userID) != engine.Empty
}

// Participants returns the ids of the seated players (one while waiting).
func (s Session) Participants() []int64 {
	ids := []int64{s.PlayerX.ID}
	if s.PlayerO != nil {
		ids = append(ids, s.PlayerO.ID)
	}
	return ids
}

// PlayerFor returns the user playing mark, or nil.
func (s Session) PlayerFor(mark engine.Mark) *storage.User {
	switch mark {
	case engine.X:
		u := s.PlayerX
		return &u
	case engine.O:
		if s.PlayerO != nil {
			u := *s.PlayerO
			return &u
		}
	}
	return nil
}

func (s Session) clone() Session {
	c := s
	if s.PlayerO != nil {
		o := *s.PlayerO
		c.PlayerO = &o
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	return c
}
