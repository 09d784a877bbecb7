package match

import (
	"errors"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
)

// State errors returned by Store operations. engine.ErrInvalidMove is also
// returned unchanged by Move.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotJoinable = errors.New("session not joinable")
	ErrSessionNotActive   = errors.New("session not active")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrSelfJoin           = errors.New("cannot join own session")
	ErrAlreadyInGame      = errors.New("already in a game")
	ErrNotAParticipant    = errors.New("not a participant")
)

var stateErrors = []error{
	ErrSessionNotFound,
	ErrSessionNotJoinable,
	ErrSessionNotActive,
	ErrNotYourTurn,
	ErrSelfJoin,
	ErrAlreadyInGame,
	ErrNotAParticipant,
	engine.ErrInvalidMove,
}

// IsStateError reports whether err is an action that is illegal for the
// session's current state, as opposed to an infrastructure failure.
func IsStateError(err error) bool {
	for _, target := range stateErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
