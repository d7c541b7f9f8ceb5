package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

var (
	base    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	general = domain.Target{ChannelID: "general"}
	random  = domain.Target{ChannelID: "random"}
)

func msg(id string, target domain.Target, offset time.Duration) *domain.Message {
	return &domain.Message{
		ID:        id,
		AuthorID:  "alice",
		ChannelID: target.ChannelID,
		ConvID:    target.ConversationID,
		Content:   "text " + id,
		CreatedAt: base.Add(offset),
	}
}

func ids(ms []domain.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestMessageStore_PageNewestFirst(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	for i, id := range []string{"01A", "01B", "01C", "01D", "01E"} {
		require.NoError(t, s.Create(ctx, msg(id, general, time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.Create(ctx, msg("01Z", random, 0)))

	page, err := s.Page(ctx, general, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"01E", "01D"}, ids(page))

	cur := &domain.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	page2, err := s.Page(ctx, general, cur, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"01C", "01B"}, ids(page2))

	cur = &domain.Cursor{CreatedAt: page2[1].CreatedAt, ID: page2[1].ID}
	page3, err := s.Page(ctx, general, cur, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"01A"}, ids(page3), "short page means no more history")
}

func TestMessageStore_SameTimestampTieBreak(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, msg("B", general, 0)))
	require.NoError(t, s.Create(ctx, msg("A", general, 0)))
	require.NoError(t, s.Create(ctx, msg("C", general, 0)))

	page, err := s.Page(ctx, general, &domain.Cursor{CreatedAt: base, ID: "C"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, ids(page))
}

func TestMessageStore_CursorSurvivesDelete(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	for i, id := range []string{"01A", "01B", "01C"} {
		require.NoError(t, s.Create(ctx, msg(id, general, time.Duration(i)*time.Second)))
	}
	_, err := s.Delete(ctx, "01B")
	require.NoError(t, err)

	page, err := s.Page(ctx, general, &domain.Cursor{CreatedAt: base.Add(time.Second), ID: "01B"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"01A"}, ids(page))
}

func TestMessageStore_UpdateDelete(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, msg("01A", general, 0)))

	edited := base.Add(time.Minute)
	m, err := s.UpdateContent(ctx, "01A", "new", edited)
	require.NoError(t, err)
	assert.Equal(t, "new", m.Content)
	require.NotNil(t, m.EditedAt)
	assert.True(t, edited.Equal(*m.EditedAt))

	_, err = s.UpdateContent(ctx, "missing", "x", edited)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	del, err := s.Delete(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, "general", del.ChannelID)

	_, err = s.Delete(ctx, "01A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, "01A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, s.Len())
}

func TestMessageStore_DanglingReply(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, msg("01A", general, 0)))

	reply := msg("01B", general, time.Second)
	parent := "01A"
	reply.ReplyToID = &parent
	require.NoError(t, s.Create(ctx, reply))
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "01A", reply.ReplyTo.ID)

	_, err := s.Delete(ctx, "01A")
	require.NoError(t, err)

	got, err := s.Get(ctx, "01B")
	require.NoError(t, err)
	require.NotNil(t, got.ReplyToID)
	assert.Nil(t, got.ReplyTo, "vanished reply target resolves to not found")

	page, err := s.Page(ctx, general, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Nil(t, page[0].ReplyTo)
}

func TestMessageStore_ForeignTargetReplyIsNotResolved(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, msg("01A", random, 0)))

	reply := msg("01B", general, time.Second)
	parent := "01A"
	reply.ReplyToID = &parent
	require.NoError(t, s.Create(ctx, reply))
	assert.Nil(t, reply.ReplyTo)
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	room := domain.ChannelRoom("general")

	open := NewMembership(true)
	ok, err := open.CanAccess(ctx, "anyone", room)
	require.NoError(t, err)
	assert.True(t, ok)

	m := NewMembership(false)
	m.Grant(room, "alice", "bob")
	ok, _ = m.CanAccess(ctx, "alice", room)
	assert.True(t, ok)
	ok, _ = m.CanAccess(ctx, "carol", room)
	assert.False(t, ok)

	m.Revoke(room, "alice")
	ok, _ = m.CanAccess(ctx, "alice", room)
	assert.False(t, ok)

	m.RevokeRoom(room)
	ok, _ = m.CanAccess(ctx, "bob", room)
	assert.False(t, ok)
}
