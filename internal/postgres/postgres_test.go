package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// testPool подключается к TEST_DATABASE_URL; без базы тесты пропускаются.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, Config{DSN: dsn, MaxConns: 4, ApplicationName: "realtime-service-test"})
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func TestMessageRepository_CreatePageDelete(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	target := domain.Target{ChannelID: "test-" + uuid.NewString()}
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Millisecond)
		id := newID(ts)
		ids = append(ids, id)
		require.NoError(t, repo.Create(ctx, &domain.Message{
			ID: id, AuthorID: "alice", ChannelID: target.ChannelID, Content: "m", CreatedAt: ts,
		}))
	}

	page, err := repo.Page(ctx, target, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	// курсор по удалённому сообщению продолжает работать
	_, err = repo.Delete(ctx, ids[3])
	require.NoError(t, err)
	cur, err := domain.CursorFromID(ids[3])
	require.NoError(t, err)
	page, err = repo.Page(ctx, target, cur, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	_, err = repo.Delete(ctx, ids[3])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepository_ReplyResolution(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	target := domain.Target{ConversationID: "test-" + uuid.NewString()}
	now := time.Now().UTC().Truncate(time.Millisecond)

	parent := &domain.Message{ID: newID(now), AuthorID: "alice", ConvID: target.ConversationID, Content: "parent", CreatedAt: now}
	require.NoError(t, repo.Create(ctx, parent))

	reply := &domain.Message{
		ID: newID(now.Add(time.Millisecond)), AuthorID: "bob", ConvID: target.ConversationID,
		Content: "reply", ReplyToID: &parent.ID, CreatedAt: now.Add(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, reply))
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "parent", reply.ReplyTo.Content)

	_, err := repo.Delete(ctx, parent.ID)
	require.NoError(t, err)

	got, err := repo.Get(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReplyToID)
	assert.Nil(t, got.ReplyTo)
}

func TestMessageRepository_UpdateContent(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	m := &domain.Message{ID: newID(now), AuthorID: "alice", ChannelID: "test-" + uuid.NewString(), Content: "v1", CreatedAt: now}
	require.NoError(t, repo.Create(ctx, m))

	edited := now.Add(time.Second)
	got, err := repo.UpdateContent(ctx, m.ID, "v2", edited)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	require.NotNil(t, got.EditedAt)
	assert.True(t, edited.Equal(*got.EditedAt))

	_, err = repo.UpdateContent(ctx, newID(now), "x", edited)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMembershipRepository_UserRoom(t *testing.T) {
	repo := NewMembershipRepository(nil)
	ok, err := repo.CanAccess(context.Background(), "alice", domain.UserRoom("alice"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CanAccess(context.Background(), "alice", domain.UserRoom("bob"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorArgs(t *testing.T) {
	a, b := cursorArgs(nil)
	assert.Nil(t, a)
	assert.Nil(t, b)

	ts := time.Now()
	a, b = cursorArgs(&domain.Cursor{CreatedAt: ts, ID: "x"})
	assert.Equal(t, ts, a)
	assert.Equal(t, "x", b)

	ch, cv := targetArgs(domain.Target{ConversationID: "d"})
	assert.Nil(t, ch)
	assert.Equal(t, "d", cv)
}
