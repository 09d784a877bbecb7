package gameserver

import (
	"errors"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

var (
	errIdentityRejected = errors.New("identity rejected")
	errUnknownUser      = errors.New("unknown user")
)

// msgProcessing is sent for malformed frames and infrastructure failures.
const msgProcessing = "Error processing message"

// clientMessage maps err, raised while handling a message of type t, to the
// text sent back to the originating channel. The second result is false when
// err is not a rejection the client caused.
func clientMessage(t protocol.Type, err error) (string, bool) {
	switch {
	case errors.Is(err, errIdentityRejected):
		return "Authentication failed", true
	case errors.Is(err, errUnknownUser):
		return "User not found", true
	case errors.Is(err, match.ErrAlreadyInGame):
		return "You are already in a game", true
	case errors.Is(err, match.ErrSelfJoin):
		return "You cannot join your own game", true
	case errors.Is(err, match.ErrSessionNotJoinable):
		return "Game not available to join", true
	case errors.Is(err, match.ErrNotYourTurn):
		return "Not your turn", true
	case errors.Is(err, engine.ErrInvalidMove):
		return "Invalid move", true
	case errors.Is(err, match.ErrNotAParticipant):
		return "You are not part of this game", true
	case errors.Is(err, match.ErrSessionNotActive):
		if t == protocol.TypeResignGame {
			return "Cannot resign - game not in progress", true
		}
		return "Invalid game state", true
	}
	return msgProcessing, false
}
