package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drain(o *Outbox) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-o.Events():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestOutbox_PushAndClose(t *testing.T) {
	o := NewOutbox(2)
	require.NotEmpty(t, o.ID())

	require.NoError(t, o.Push([]byte("a")))
	require.NoError(t, o.Push([]byte("b")))
	assert.ErrorIs(t, o.Push([]byte("c")), ErrBufferFull)

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Push([]byte("d")), ErrChannelClosed)

	msgs := drain(o)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, msgs)
}

func TestOutbox_DistinctIDs(t *testing.T) {
	assert.NotEqual(t, NewOutbox(1).ID(), NewOutbox(1).ID())
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(4)

	first := r.Register(o)
	second := r.Register(o)
	assert.False(t, first.Authenticated)
	assert.Equal(t, first.ConnectedAt, second.ConnectedAt)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Authenticate(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(4)
	r.Register(o)

	require.NoError(t, r.Authenticate(o.ID(), 7, "alice"))
	e, ok := r.Lookup(o.ID())
	require.True(t, ok)
	assert.True(t, e.Authenticated)
	assert.Equal(t, int64(7), e.UserID)
	assert.Equal(t, "alice", e.Username)

	assert.ErrorIs(t, r.Authenticate("missing", 1, "x"), ErrChannelNotFound)
}

func TestRegistry_UnregisterTwice(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(4)
	r.Register(o)
	require.NoError(t, r.Authenticate(o.ID(), 3, "carol"))

	e, ok := r.Unregister(o.ID())
	require.True(t, ok)
	assert.Equal(t, int64(3), e.UserID)

	_, ok = r.Unregister(o.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ListOnline(t *testing.T) {
	r := NewRegistry()
	anon := NewOutbox(4)
	bob := NewOutbox(4)
	alice1 := NewOutbox(4)
	alice2 := NewOutbox(4)
	gone := NewOutbox(4)
	for _, o := range []*Outbox{anon, bob, alice1, alice2, gone} {
		r.Register(o)
	}
	require.NoError(t, r.Authenticate(bob.ID(), 2, "bob"))
	require.NoError(t, r.Authenticate(alice1.ID(), 1, "alice"))
	require.NoError(t, r.Authenticate(alice2.ID(), 1, "alice"))
	require.NoError(t, r.Authenticate(gone.ID(), 9, "zed"))
	require.NoError(t, gone.Close())

	players := r.ListOnline(func(id int64) bool { return id == 2 })
	assert.Equal(t, []OnlinePlayer{
		{ID: 1, Username: "alice", InGame: false},
		{ID: 2, Username: "bob", InGame: true},
	}, players)
}

func TestRegistry_ListOnlineEmpty(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOutbox(1))
	players := r.ListOnline(nil)
	assert.NotNil(t, players)
	assert.Empty(t, players)
}

func TestRegistry_SendReachesEveryChannelOfUser(t *testing.T) {
	r := NewRegistry()
	a1, a2, b := NewOutbox(4), NewOutbox(4), NewOutbox(4)
	for _, o := range []*Outbox{a1, a2, b} {
		r.Register(o)
	}
	require.NoError(t, r.Authenticate(a1.ID(), 1, "alice"))
	require.NoError(t, r.Authenticate(a2.ID(), 1, "alice"))
	require.NoError(t, r.Authenticate(b.ID(), 2, "bob"))

	assert.Equal(t, 2, r.Send(1, []byte("hi")))
	assert.Len(t, drain(a1), 1)
	assert.Len(t, drain(a2), 1)
	assert.Empty(t, drain(b))

	assert.Equal(t, 0, r.Send(99, []byte("nobody")))
}

func TestRegistry_SendTo(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(4)
	r.Register(o)

	assert.True(t, r.SendTo(o.ID(), []byte("x")))
	assert.False(t, r.SendTo("missing", []byte("x")))
	require.NoError(t, o.Close())
	assert.False(t, r.SendTo(o.ID(), []byte("x")))
}

func TestRegistry_BroadcastSkipsExcludedAndClosed(t *testing.T) {
	r := NewRegistry()
	a, b, c := NewOutbox(4), NewOutbox(4), NewOutbox(4)
	for _, o := range []*Outbox{a, b, c} {
		r.Register(o)
	}
	require.NoError(t, c.Close())

	assert.Equal(t, 1, r.Broadcast([]byte("all"), a.ID()))
	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}

func TestRegistry_FullBufferClosesChannel(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(1)
	r.Register(o)
	require.NoError(t, r.Authenticate(o.ID(), 1, "alice"))

	assert.Equal(t, 1, r.Send(1, []byte("1")))
	assert.Equal(t, 0, r.Send(1, []byte("2")))
	assert.True(t, o.IsClosed())
	assert.False(t, r.HasOpenChannel(1))
}

func TestRegistry_HasOpenChannel(t *testing.T) {
	r := NewRegistry()
	o := NewOutbox(1)
	r.Register(o)
	assert.False(t, r.HasOpenChannel(1))
	require.NoError(t, r.Authenticate(o.ID(), 1, "alice"))
	assert.True(t, r.HasOpenChannel(1))
	r.Unregister(o.ID())
	assert.False(t, r.HasOpenChannel(1))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := NewOutbox(64)
			r.Register(o)
			_ = r.Authenticate(o.ID(), int64(i%5+1), fmt.Sprintf("user%d", i%5))
			r.Broadcast([]byte("tick"), "")
			r.ListOnline(nil)
			if i%2 == 0 {
				r.Unregister(o.ID())
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Count())
	assert.Len(t, r.ListOnline(nil), 5)
}

func TestProperty_ListOnlineUniqueAndSorted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry()
		n := rapid.IntRange(0, 20).Draw(rt, "channels")
		for i := 0; i < n; i++ {
			o := NewOutbox(1)
			r.Register(o)
			if rapid.Bool().Draw(rt, "auth") {
				uid := rapid.Int64Range(1, 6).Draw(rt, "uid")
				_ = r.Authenticate(o.ID(), uid, fmt.Sprintf("u%d", uid))
			}
		}
		players := r.ListOnline(nil)
		seen := make(map[int64]bool)
		for i, p := range players {
			if seen[p.ID] {
				rt.Fatalf("duplicate user %d", p.ID)
			}
			seen[p.ID] = true
			if i > 0 && players[i-1].Username > p.Username {
				rt.Fatalf("not sorted at %d", i)
			}
		}
	})
}
