// Package protocol defines the JSON envelope exchanged over client channels
// and the typed messages carried inside it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a frame is not a valid envelope or its
// payload does not match the declared type.
var ErrMalformed = errors.New("malformed message")

// ErrUnknownType is returned for a well-formed envelope whose type is not
// recognized.
var ErrUnknownType = errors.New("unknown message type")

// Type is the envelope discriminator.
type Type string

// Inbound message types.
const (
	TypeAuthenticate Type = "authenticate"
	TypeCreateGame   Type = "createGame"
	TypeJoinGame     Type = "joinGame"
	TypeMakeMove     Type = "makeMove"
	TypeResignGame   Type = "resignGame"
)

// Outbound message types.
const (
	TypeUserInfo          Type = "userInfo"
	TypeGameStateUpdate   Type = "gameStateUpdate"
	TypeOnlinePlayers     Type = "onlinePlayers"
	TypeMatchHistory      Type = "matchHistory"
	TypeLeaderboardUpdate Type = "leaderboardUpdate"
	TypeError             Type = "error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is one decoded client message. The concrete type is one of
// Authenticate, CreateGame, JoinGame, MakeMove or ResignGame.
type Inbound interface {
	Type() Type
	inbound()
}

// Authenticate binds an identity to the channel. Token is required when the
// server verifies identities.
type Authenticate struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// CreateGame opens a new game with the sender as X.
type CreateGame struct{}

// JoinGame takes the open O seat of a waiting game.
type JoinGame struct {
	GameID int64 `json:"gameId"`
}

// MakeMove places the sender's mark on CellIndex.
type MakeMove struct {
	GameID    int64 `json:"gameId"`
	CellIndex int   `json:"cellIndex"`
}

// ResignGame concedes an in-progress game.
type ResignGame struct {
	GameID int64 `json:"gameId"`
}

func (Authenticate) Type() Type { return TypeAuthenticate }
func (CreateGame) Type() Type   { return TypeCreateGame }
func (JoinGame) Type() Type     { return TypeJoinGame }
func (MakeMove) Type() Type     { return TypeMakeMove }
func (ResignGame) Type() Type   { return TypeResignGame }

func (Authenticate) inbound() {}
func (CreateGame) inbound()   {}
func (JoinGame) inbound()     {}
func (MakeMove) inbound()     {}
func (ResignGame) inbound()   {}

// Decode parses one frame into its typed message.
//
// Postcondition: Returns ErrMalformed when the frame or its payload cannot be
// decoded or a required field is missing, ErrUnknownType when the type is not
// an inbound type.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeAuthenticate:
		var p Authenticate
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.UserID <= 0 {
			return nil, fmt.Errorf("%w: authenticate requires userId", ErrMalformed)
		}
		return p, nil
	case TypeCreateGame:
		return CreateGame{}, nil
	case TypeJoinGame:
		var p struct {
			GameID *int64 `json:"gameId"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.GameID == nil {
			return nil, fmt.Errorf("%w: joinGame requires gameId", ErrMalformed)
		}
		return JoinGame{GameID: *p.GameID}, nil
	case TypeMakeMove:
		var p struct {
			GameID    *int64 `json:"gameId"`
			CellIndex *int   `json:"cellIndex"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.GameID == nil || p.CellIndex == nil {
			return nil, fmt.Errorf("%w: makeMove requires gameId and cellIndex", ErrMalformed)
		}
		return MakeMove{GameID: *p.GameID, CellIndex: *p.CellIndex}, nil
	case TypeResignGame:
		var p struct {
			GameID *int64 `json:"gameId"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.GameID == nil {
			return nil, fmt.Errorf("%w: resignGame requires gameId", ErrMalformed)
		}
		return ResignGame{GameID: *p.GameID}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return fmt.Errorf("%w: %s requires a payload", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrMalformed, env.Type, err)
	}
	return nil
}
