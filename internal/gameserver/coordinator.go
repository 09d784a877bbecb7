// Package gameserver binds client channels to games: it decodes inbound
// messages, drives the match store, and fans state out to participants and
// observers.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Options tunes coordinator behavior.
type Options struct {
	// LeaderboardSize is the number of rows in leaderboardUpdate messages.
	LeaderboardSize int
	// HistoryLimit is the number of games sent in matchHistory.
	HistoryLimit int
	// ResignOnDisconnect resigns an in-progress game for a user whose last
	// open channel closes.
	ResignOnDisconnect bool
}

func (o Options) withDefaults() Options {
	if o.LeaderboardSize <= 0 {
		o.LeaderboardSize = 10
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = storage.DefaultHistoryLimit
	}
	return o
}

// Coordinator is the message-handling entry point for client channels.
type Coordinator struct {
	store    storage.Store
	games    *match.Store
	registry *session.Registry
	verifier IdentityVerifier
	opts     Options
	logger   *zap.Logger

	// Held from computing a broadcast through delivering it, so clients
	// always end on the newest snapshot.
	presenceMu    sync.Mutex
	leaderboardMu sync.Mutex
}

// NewCoordinator creates a Coordinator.
//
// Precondition: every argument except opts must be non-nil.
func NewCoordinator(
	store storage.Store,
	games *match.Store,
	registry *session.Registry,
	verifier IdentityVerifier,
	opts Options,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		games:    games,
		registry: registry,
		verifier: verifier,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Connect registers a freshly opened, unauthenticated channel.
func (c *Coordinator) Connect(ch session.Channel) {
	c.registry.Register(ch)
	c.logger.Debug("channel connected", zap.String("channel", ch.ID()))
}

// Disconnect unregisters the channel and refreshes presence. Calls after the
// first for the same channel are no-ops.
func (c *Coordinator) Disconnect(ctx context.Context, channelID string) {
	entry, ok := c.registry.Unregister(channelID)
	if !ok {
		return
	}
	_ = entry.Channel.Close()
	c.logger.Debug("channel disconnected",
		zap.String("channel", channelID),
		zap.Int64("user_id", entry.UserID),
	)
	if !entry.Authenticated {
		return
	}

	if c.opts.ResignOnDisconnect && !c.registry.HasOpenChannel(entry.UserID) {
		c.resignAbandoned(ctx, entry.UserID)
	}
	c.broadcastOnline()
}

func (c *Coordinator) resignAbandoned(ctx context.Context, userID int64) {
	sess, ok := c.games.ActiveFor(userID)
	if !ok || sess.Status != match.StatusInProgress {
		return
	}
	if _, err := c.games.Resign(ctx, sess.ID, userID, c.notifyParticipants); err != nil {
		c.logger.Warn("resigning abandoned game",
			zap.Int64("game_id", sess.ID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}
	c.broadcastLeaderboard(ctx)
}

// HandleMessage decodes and dispatches one inbound frame. Rejections are
// reported to the originating channel only; nothing here terminates it.
func (c *Coordinator) HandleMessage(ctx context.Context, channelID string, raw []byte) {
	logger := c.logger.With(zap.String("channel", channelID))

	msg, err := protocol.Decode(raw)
	if errors.Is(err, protocol.ErrUnknownType) {
		logger.Debug("ignoring message", zap.Error(err))
		return
	}
	if err != nil {
		logger.Debug("malformed message", zap.Error(err))
		c.registry.SendTo(channelID, protocol.Error(msgProcessing))
		return
	}

	entry, ok := c.registry.Lookup(channelID)
	if !ok {
		logger.Debug("message from unregistered channel", zap.String("type", string(msg.Type())))
		return
	}

	if auth, ok := msg.(protocol.Authenticate); ok {
		err = c.authenticate(ctx, channelID, auth)
	} else if !entry.Authenticated {
		logger.Debug("ignoring message from unauthenticated channel", zap.String("type", string(msg.Type())))
		return
	} else {
		err = c.dispatch(ctx, entry, msg)
	}
	if err == nil {
		return
	}

	text, rejected := clientMessage(msg.Type(), err)
	if rejected {
		logger.Debug("message rejected", zap.String("type", string(msg.Type())), zap.Error(err))
	} else {
		logger.Error("handling message", zap.String("type", string(msg.Type())), zap.Error(err))
	}
	c.registry.SendTo(channelID, protocol.Error(text))
}

func (c *Coordinator) dispatch(ctx context.Context, entry session.Entry, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.CreateGame:
		return c.createGame(ctx, entry.UserID)
	case protocol.JoinGame:
		return c.joinGame(ctx, entry.UserID, m.GameID)
	case protocol.MakeMove:
		return c.makeMove(ctx, entry.UserID, m.GameID, m.CellIndex)
	case protocol.ResignGame:
		return c.resignGame(ctx, entry.UserID, m.GameID)
	}
	return fmt.Errorf("unhandled message type %q", msg.Type())
}

// authenticate verifies the claim and loads profile, history and
// leaderboard. Only when all of them load is the identity bound to the
// channel; the channel then receives them, with any active game before the
// leaderboard, and presence is broadcast to everyone.
func (c *Coordinator) authenticate(ctx context.Context, channelID string, m protocol.Authenticate) error {
	if err := c.verifier.Verify(ctx, m.UserID, m.Username, m.Token); err != nil {
		return fmt.Errorf("%w: %w", errIdentityRejected, err)
	}
	user, err := c.user(ctx, m.UserID)
	if err != nil {
		return err
	}
	if m.Username != "" && !strings.EqualFold(m.Username, user.Username) {
		return fmt.Errorf("%w: username does not match user %d", errIdentityRejected, user.ID)
	}

	initial, err := c.initialState(ctx, user)
	if err != nil {
		return err
	}
	if err := c.registry.Authenticate(channelID, user.ID, user.Username); err != nil {
		return err
	}
	c.logger.Info("channel authenticated",
		zap.String("channel", channelID),
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
	)
	c.registry.SendTo(channelID, initial.info)
	c.registry.SendTo(channelID, initial.history)
	if sess, ok := c.games.ActiveFor(user.ID); ok {
		data, err := protocol.GameStateUpdate(sess)
		if err != nil {
			return err
		}
		c.registry.SendTo(channelID, data)
	}
	c.registry.SendTo(channelID, initial.leaderboard)

	c.broadcastOnline()
	return nil
}

// initialMessages are the encoded messages a channel receives on login.
type initialMessages struct {
	info        []byte
	history     []byte
	leaderboard []byte
}

func (c *Coordinator) initialState(ctx context.Context, user storage.User) (initialMessages, error) {
	var out initialMessages
	var err error
	if out.info, err = protocol.UserInfo(user); err != nil {
		return out, err
	}
	history, err := LoadHistory(ctx, c.store, user.ID, c.opts.HistoryLimit)
	if err != nil {
		return out, err
	}
	if out.history, err = protocol.MatchHistory(history); err != nil {
		return out, err
	}
	if out.leaderboard, err = c.leaderboard(ctx); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Coordinator) createGame(ctx context.Context, userID int64) error {
	if c.games.InGame(userID) {
		return match.ErrAlreadyInGame
	}
	user, err := c.user(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := c.games.Create(ctx, user, c.notifyParticipants); err != nil {
		return err
	}
	c.broadcastOnline()
	return nil
}

func (c *Coordinator) joinGame(ctx context.Context, userID, gameID int64) error {
	user, err := c.user(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := c.games.Join(ctx, gameID, user, c.notifyParticipants); err != nil {
		return err
	}
	c.broadcastOnline()
	return nil
}

func (c *Coordinator) makeMove(ctx context.Context, userID, gameID int64, cell int) error {
	_, outcome, err := c.games.Move(ctx, gameID, userID, cell, c.notifyParticipants)
	if err != nil {
		return err
	}
	c.broadcastOnline()
	if outcome != engine.Ongoing {
		c.broadcastLeaderboard(ctx)
	}
	return nil
}

func (c *Coordinator) resignGame(ctx context.Context, userID, gameID int64) error {
	if _, err := c.games.Resign(ctx, gameID, userID, c.notifyParticipants); err != nil {
		return err
	}
	c.broadcastOnline()
	c.broadcastLeaderboard(ctx)
	return nil
}

func (c *Coordinator) user(ctx context.Context, id int64) (storage.User, error) {
	u, err := c.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrUserNotFound) {
		return storage.User{}, fmt.Errorf("%w: %d", errUnknownUser, id)
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("loading user %d: %w", id, err)
	}
	return u, nil
}

// notifyParticipants sends the snapshot to every open channel of both
// players. It runs under the session lock, so it only enqueues.
func (c *Coordinator) notifyParticipants(s match.Session) {
	data, err := protocol.GameStateUpdate(s)
	if err != nil {
		c.logger.Error("encoding game state", zap.Int64("game_id", s.ID), zap.Error(err))
		return
	}
	for _, uid := range s.Participants() {
		c.registry.Send(uid, data)
	}
}

func (c *Coordinator) broadcastOnline() {
	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()

	data, err := protocol.OnlinePlayers(c.registry.ListOnline(c.games.InGame))
	if err != nil {
		c.logger.Error("encoding online players", zap.Error(err))
		return
	}
	c.registry.Broadcast(data, "")
}

func (c *Coordinator) leaderboard(ctx context.Context) ([]byte, error) {
	rows, err := c.store.GetLeaderboard(ctx, c.opts.LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}
	return protocol.LeaderboardUpdate(rows)
}

func (c *Coordinator) broadcastLeaderboard(ctx context.Context) {
	c.leaderboardMu.Lock()
	defer c.leaderboardMu.Unlock()

	data, err := c.leaderboard(ctx)
	if err != nil {
		c.logger.Error("broadcasting leaderboard", zap.Error(err))
		return
	}
	c.registry.Broadcast(data, "")
}
