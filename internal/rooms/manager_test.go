package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

func TestManager_JoinLeave(t *testing.T) {
	m := NewManager()
	room := domain.ChannelRoom("1")

	assert.True(t, m.Join("c1", room))
	assert.False(t, m.Join("c1", room), "join is idempotent")
	assert.True(t, m.IsMember("c1", room))
	assert.ElementsMatch(t, []domain.ConnID{"c1"}, m.Members(room))

	assert.True(t, m.Leave("c1", room))
	assert.False(t, m.Leave("c1", room), "second leave is a no-op")
	assert.Empty(t, m.Members(room))
	assert.Zero(t, m.Len(), "empty rooms are pruned")
	assert.Empty(t, m.RoomsOf("c1"))
}

func TestManager_JoinLeaveNeutral(t *testing.T) {
	m := NewManager()
	room := domain.ServerRoom("s")
	m.Join("other", room)
	before := m.Members(room)

	m.Join("c1", room)
	m.Leave("c1", room)

	assert.ElementsMatch(t, before, m.Members(room))
	assert.Equal(t, 1, m.Len())
}

func TestManager_LeaveAllReturnsExactlyJoined(t *testing.T) {
	m := NewManager()
	joined := []domain.RoomKey{
		domain.ChannelRoom("a"),
		domain.ConversationRoom("b"),
		domain.UserRoom("u1"),
	}
	for _, r := range joined {
		m.Join("c1", r)
	}
	m.Join("c2", domain.ChannelRoom("a"))
	m.Join("c1", domain.ServerRoom("tmp"))
	m.Leave("c1", domain.ServerRoom("tmp"))

	got := m.LeaveAll("c1")
	assert.ElementsMatch(t, joined, got)
	assert.Empty(t, m.RoomsOf("c1"))
	assert.ElementsMatch(t, []domain.ConnID{"c2"}, m.Members(domain.ChannelRoom("a")))
	assert.Equal(t, 1, m.Len())

	assert.Empty(t, m.LeaveAll("c1"), "second LeaveAll is empty")
}

func TestManager_MembersIsCopy(t *testing.T) {
	m := NewManager()
	room := domain.ChannelRoom("x")
	m.Join("c1", room)

	snap := m.Members(room)
	m.Join("c2", room)
	require.Len(t, snap, 1)
	assert.Len(t, m.Members(room), 2)
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager()
	room := domain.ChannelRoom("hot")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := domain.ConnID(fmt.Sprint(i))
			m.Join(c, room)
			_ = m.Members(room)
			m.LeaveAll(c)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, m.Len())
}
