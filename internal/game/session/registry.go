package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrChannelNotFound is returned when a channel id is not registered.
var ErrChannelNotFound = errors.New("channel not registered")

// Entry is one registered channel and the identity bound to it, if any.
type Entry struct {
	Channel       Channel
	UserID        int64
	Username      string
	Authenticated bool
	ConnectedAt   time.Time
}

// OnlinePlayer is one row of the presence list.
type OnlinePlayer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	InGame   bool   `json:"inGame"`
}

// Registry maps channel ids to entries. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry // channel id → entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Register adds an unauthenticated entry for ch. Registering the same
// channel twice returns the existing entry.
//
// Precondition: ch must be non-nil.
func (r *Registry) Register(ch Channel) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[ch.ID()]; ok {
		return *e
	}
	e := &Entry{Channel: ch, ConnectedAt: time.Now()}
	r.entries[ch.ID()] = e
	return *e
}

// Authenticate binds an identity to the channel. Other channels already
// bound to the same user are left untouched.
//
// Postcondition: Returns ErrChannelNotFound if channelID is not registered.
func (r *Registry) Authenticate(channelID string, userID int64, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[channelID]
	if !ok {
		return fmt.Errorf("authenticating %s: %w", channelID, ErrChannelNotFound)
	}
	e.UserID = userID
	e.Username = username
	e.Authenticated = true
	return nil
}

// Unregister removes the channel and returns its final entry. The second
// call for the same channel returns false.
func (r *Registry) Unregister(channelID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[channelID]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, channelID)
	return *e, true
}

// Lookup returns a copy of the channel's entry.
func (r *Registry) Lookup(channelID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[channelID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ListOnline returns one row per authenticated user with an open channel,
// sorted by username. inGame is evaluated for every row at call time.
func (r *Registry) ListOnline(inGame func(userID int64) bool) []OnlinePlayer {
	r.mu.RLock()
	seen := make(map[int64]bool)
	players := make([]OnlinePlayer, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.Authenticated || e.Channel.IsClosed() || seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		players = append(players, OnlinePlayer{ID: e.UserID, Username: e.Username})
	}
	r.mu.RUnlock()

	for i := range players {
		if inGame != nil {
			players[i].InGame = inGame(players[i].ID)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Username != players[j].Username {
			return players[i].Username < players[j].Username
		}
		return players[i].ID < players[j].ID
	})
	return players
}

// HasOpenChannel reports whether any open channel is bound to userID.
func (r *Registry) HasOpenChannel(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Authenticated && e.UserID == userID && !e.Channel.IsClosed() {
			return true
		}
	}
	return false
}

// SendTo delivers data to one channel and reports whether it was enqueued.
func (r *Registry) SendTo(channelID string, data []byte) bool {
	r.mu.RLock()
	e, ok := r.entries[channelID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return deliver(e.Channel, data)
}

// Send delivers data to every open channel bound to userID and returns how
// many accepted it. An offline user is not an error.
func (r *Registry) Send(userID int64, data []byte) int {
	r.mu.RLock()
	var targets []Channel
	for _, e := range r.entries {
		if e.Authenticated && e.UserID == userID {
			targets = append(targets, e.Channel)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, ch := range targets {
		if deliver(ch, data) {
			n++
		}
	}
	return n
}

// Broadcast delivers data to every open channel except exclude (which may
// be empty) and returns how many accepted it.
func (r *Registry) Broadcast(data []byte, exclude string) int {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.entries))
	for id, e := range r.entries {
		if id != exclude {
			targets = append(targets, e.Channel)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, ch := range targets {
		if deliver(ch, data) {
			n++
		}
	}
	return n
}

// deliver pushes to ch, skipping closed channels. A channel whose buffer is
// full is closed so the transport drops the slow client.
func deliver(ch Channel, data []byte) bool {
	if ch.IsClosed() {
		return false
	}
	if err := ch.Push(data); err != nil {
		if errors.Is(err, ErrBufferFull) {
			_ = ch.Close()
		}
		return false
	}
	return true
}
