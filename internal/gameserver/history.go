package gameserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/tictactoe/internal/protocol"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// LoadHistory returns the user's most recent games, newest first, each
// expanded with both players and the parsed board. A player that no longer
// resolves is left nil.
//
// Precondition: store must be non-nil.
func LoadHistory(ctx context.Context, store storage.Store, userID int64, limit int) ([]protocol.HistoryEntry, error) {
	records, err := store.GetGamesForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading games for user %d: %w", userID, err)
	}

	users := make(map[int64]*storage.User)
	resolve := func(id int64) (*storage.User, error) {
		if id == 0 {
			return nil, nil
		}
		if u, ok := users[id]; ok {
			return u, nil
		}
		u, err := store.GetUser(ctx, id)
		if errors.Is(err, storage.ErrUserNotFound) {
			users[id] = nil
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		users[id] = &u
		return &u, nil
	}

	entries := make([]protocol.HistoryEntry, 0, len(records))
	for _, rec := range records {
		x, err := resolve(rec.PlayerXID)
		if err != nil {
			return nil, fmt.Errorf("loading player %d: %w", rec.PlayerXID, err)
		}
		o, err := resolve(rec.PlayerOID)
		if err != nil {
			return nil, fmt.Errorf("loading player %d: %w", rec.PlayerOID, err)
		}
		entry, err := protocol.NewHistoryEntry(rec, x, o)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
