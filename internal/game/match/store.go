package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/engine"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Repository is the subset of the persistence contract the Store writes to.
type Repository interface {
	CreateGameRecord(ctx context.Context, playerXID, playerOID int64) (storage.GameRecord, error)
	UpdateGameRecord(ctx context.Context, id int64, update storage.GameUpdate) (storage.GameRecord, error)
	UpdateUserStats(ctx context.Context, userID int64, outcome storage.Outcome) (storage.User, error)
}

// Notify receives a session snapshot after a mutation is committed. It runs
// while the session lock is held and must not block or call back into the
// Store for the same session.
type Notify func(Session)

// pending marks a user whose session creation is in flight.
const pending int64 = 0

type entry struct {
	mu   sync.Mutex
	sess Session
}

// Store is the in-memory registry of game sessions.
//
// Mutations of one session are serialized by a per-session mutex. The store
// mutex guards only the id→session map and the user→active-session index and
// is never held across persistence calls.
type Store struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[int64]*entry
	active   map[int64]int64 // userID → id of their non-completed session
}

// NewStore creates an empty Store persisting through repo.
//
// Precondition: repo and logger must be non-nil.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	return &Store{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]*entry),
		active:   make(map[int64]int64),
	}
}

func (s *Store) get(id int64) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// Get returns a snapshot of the session.
func (s *Store) Get(id int64) (Session, bool) {
	e, ok := s.get(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.clone(), true
}

// ActiveFor returns the user's non-completed session, if any.
func (s *Store) ActiveFor(userID int64) (Session, bool) {
	s.mu.RLock()
	id, ok := s.active[userID]
	s.mu.RUnlock()
	if !ok || id == pending {
		return Session{}, false
	}
	return s.Get(id)
}

// InGame reports whether the user currently owns a non-completed session.
func (s *Store) InGame(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userID]
	return ok && id != pending
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// reserve claims the active slot for userID. It fails with ErrAlreadyInGame
// when the user already has a non-completed (or in-flight) session.
func (s *Store) reserve(userID, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[userID]; busy {
		return ErrAlreadyInGame
	}
	s.active[userID] = sessionID
	return nil
}

// release frees userID's active slot if it still points at sessionID.
func (s *Store) release(userID, sessionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[userID]; ok && id == sessionID {
		delete(s.active, userID)
	}
}

// Create opens a new waiting session with creator as X.
//
// Postcondition: Returns ErrAlreadyInGame if the creator owns a non-completed
// session; otherwise the session is persisted, registered and notified.
func (s *Store) Create(ctx context.Context, creator storage.User, notify Notify) (Session, error) {
	if err := s.reserve(creator.ID, pending); err != nil {
		return Session{}, err
	}

	rec, err := s.repo.CreateGameRecord(ctx, creator.ID, 0)
	if err != nil {
		s.release(creator.ID, pending)
		return Session{}, fmt.Errorf("creating game record: %w", err)
	}

	now := s.now()
	e := &entry{sess: Session{
		ID:            rec.ID,
		CurrentPlayer: engine.X,
		PlayerX:       creator,
		Status:        StatusWaiting,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	s.sessions[rec.ID] = e
	s.active[creator.ID] = rec.ID
	s.mu.Unlock()

	s.logger.Info("game created",
		zap.Int64("game_id", rec.ID),
		zap.Int64("player_x", creator.ID),
	)
	return s.publish(e, notify), nil
}

// Join seats joiner as O and starts the game with X to move.
//
// Postcondition: Returns ErrSessionNotJoinable if the session is absent or not
// waiting, ErrSelfJoin if joiner created it, ErrAlreadyInGame if joiner owns
// another non-completed session.
func (s *Store) Join(ctx context.Context, id int64, joiner storage.User, notify Notify) (Session, error) {
	e, ok := s.get(id)
	if !ok {
		return Session{}, fmt.Errorf("%w: %w", ErrSessionNotJoinable, ErrSessionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status != StatusWaiting {
		return Session{}, ErrSessionNotJoinable
	}
	if e.sess.PlayerX.ID == joiner.ID {
		return Session{}, ErrSelfJoin
	}
	if err := s.reserve(joiner.ID, id); err != nil {
		return Session{}, err
	}

	next := e.sess.clone()
	o := joiner
	next.PlayerO = &o
	next.Status = StatusInProgress
	next.CurrentPlayer = engine.X

	if _, err := s.repo.UpdateGameRecord(ctx, id, storage.GameUpdate{PlayerOID: &o.ID}); err != nil {
		s.release(joiner.ID, id)
		return Session{}, fmt.Errorf("updating game record: %w", err)
	}

	s.commit(e, next)
	s.logger.Info("game joined",
		zap.Int64("game_id", id),
		zap.Int64("player_o", joiner.ID),
	)
	return s.publish(e, notify), nil
}

// Move places the acting user's mark on cell.
//
// Postcondition: Returns ErrSessionNotActive unless the session is in
// progress, ErrNotYourTurn unless the user plays the side to move, and
// engine.ErrInvalidMove for an illegal cell. On success returns the
// post-move session and whether the move won, drew, or left the game ongoing.
func (s *Store) Move(ctx context.Context, id, userID int64, cell int, notify Notify) (Session, engine.Outcome, error) {
	e, ok := s.get(id)
	if !ok {
		return Session{}, engine.Ongoing, fmt.Errorf("%w: %w", ErrSessionNotActive, ErrSessionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status != StatusInProgress {
		return Session{}, engine.Ongoing, ErrSessionNotActive
	}
	mark := e.sess.MarkOf(userID)
	if mark == engine.Empty || mark != e.sess.CurrentPlayer {
		return Session{}, engine.Ongoing, ErrNotYourTurn
	}
	board, err := engine.ApplyMove(e.sess.Board, cell, mark)
	if err != nil {
		return Session{}, engine.Ongoing, err
	}

	next := e.sess.clone()
	next.Board = board
	next.Moves++

	outcome := engine.Evaluate(next.Board, next.Moves)
	switch outcome {
	case engine.Win:
		err = s.finish(ctx, e, next, next.PlayerFor(mark))
	case engine.Draw:
		err = s.finish(ctx, e, next, nil)
	default:
		next.CurrentPlayer = mark.Opponent()
		err = s.persistProgress(ctx, next)
		if err == nil {
			s.commit(e, next)
		}
	}
	if err != nil {
		return Session{}, engine.Ongoing, err
	}
	return s.publish(e, notify), outcome, nil
}

// Resign ends an in-progress game with the other participant as winner.
//
// Postcondition: Returns ErrSessionNotActive unless the session is in
// progress and ErrNotAParticipant if userID plays neither side.
func (s *Store) Resign(ctx context.Context, id, userID int64, notify Notify) (Session, error) {
	e, ok := s.get(id)
	if !ok {
		return Session{}, fmt.Errorf("%w: %w", ErrSessionNotActive, ErrSessionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status != StatusInProgress {
		return Session{}, ErrSessionNotActive
	}
	mark := e.sess.MarkOf(userID)
	if mark == engine.Empty {
		return Session{}, ErrNotAParticipant
	}

	next := e.sess.clone()
	if err := s.finish(ctx, e, next, next.PlayerFor(mark.Opponent())); err != nil {
		return Session{}, err
	}
	s.logger.Info("game resigned",
		zap.Int64("game_id", id),
		zap.Int64("resigned_by", userID),
	)
	return s.publish(e, notify), nil
}

func (s *Store) persistProgress(ctx context.Context, next Session) error {
	board, err := encodeBoard(next.Board)
	if err != nil {
		return err
	}
	if _, err := s.repo.UpdateGameRecord(ctx, next.ID, storage.GameUpdate{
		Board: &board,
		Moves: &next.Moves,
	}); err != nil {
		return fmt.Errorf("updating game record: %w", err)
	}
	return nil
}

// finish completes next with winner (nil for a draw), persists the final
// record, commits, and updates both players' statistics.
//
// Precondition: e.mu is held; next is a clone of e.sess with the final board.
func (s *Store) finish(ctx context.Context, e *entry, next Session, winner *storage.User) error {
	next.Status = StatusCompleted
	next.Winner = winner
	next.IsDraw = winner == nil

	board, err := encodeBoard(next.Board)
	if err != nil {
		return err
	}
	completedAt := s.now()
	update := storage.GameUpdate{
		IsDraw:      &next.IsDraw,
		Board:       &board,
		Moves:       &next.Moves,
		CompletedAt: &completedAt,
	}
	if winner != nil {
		update.WinnerID = &winner.ID
	}
	if _, err := s.repo.UpdateGameRecord(ctx, next.ID, update); err != nil {
		return fmt.Errorf("recording game result: %w", err)
	}

	s.commit(e, next)
	for _, uid := range next.Participants() {
		s.release(uid, next.ID)
	}
	s.recordStats(ctx, next)

	fields := []zap.Field{
		zap.Int64("game_id", next.ID),
		zap.Int("moves", next.Moves),
		zap.Bool("draw", next.IsDraw),
	}
	if winner != nil {
		fields = append(fields, zap.Int64("winner", winner.ID))
	}
	s.logger.Info("game completed", fields...)
	return nil
}

// recordStats increments win/loss or draw/draw. The game is already
// committed, so failures are logged and do not roll it back.
func (s *Store) recordStats(ctx context.Context, sess Session) {
	outcomes := make(map[int64]storage.Outcome, 2)
	for _, uid := range sess.Participants() {
		switch {
		case sess.IsDraw:
			outcomes[uid] = storage.OutcomeDraw
		case sess.Winner != nil && sess.Winner.ID == uid:
			outcomes[uid] = storage.OutcomeWin
		default:
			outcomes[uid] = storage.OutcomeLoss
		}
	}
	for _, uid := range sess.Participants() {
		if _, err := s.repo.UpdateUserStats(ctx, uid, outcomes[uid]); err != nil {
			s.logger.Error("updating player stats",
				zap.Int64("game_id", sess.ID),
				zap.Int64("user_id", uid),
				zap.String("outcome", string(outcomes[uid])),
				zap.Error(err),
			)
		}
	}
}

// commit swaps next in as the live session.
//
// Precondition: e.mu is held.
func (s *Store) commit(e *entry, next Session) {
	next.Version = e.sess.Version + 1
	next.UpdatedAt = s.now()
	e.sess = next
}

// publish hands a snapshot to notify and returns another.
//
// Precondition: e.mu is held.
func (s *Store) publish(e *entry, notify Notify) Session {
	if notify != nil {
		notify(e.sess.clone())
	}
	return e.sess.clone()
}

// Prune drops completed sessions last updated before now-olderThan and
// returns how many were removed.
func (s *Store) Prune(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	// Session locks are always taken before the store lock, so entries are
	// inspected only after the store lock is released.
	s.mu.RLock()
	entries := make(map[int64]*entry, len(s.sessions))
	for id, e := range s.sessions {
		entries[id] = e
	}
	s.mu.RUnlock()

	var candidates []int64
	for id, e := range entries {
		e.mu.Lock()
		if e.sess.Status == StatusCompleted && e.sess.UpdatedAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
		e.mu.Unlock()
	}

	if len(candidates) == 0 {
		return 0
	}
	s.mu.Lock()
	for _, id := range candidates {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.logger.Debug("pruned completed games", zap.Int("count", len(candidates)))
	return len(candidates)
}

func encodeBoard(b engine.Board) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encoding board: %w", err)
	}
	return string(data), nil
}
