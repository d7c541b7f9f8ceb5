package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Cursor - позиция в порядке (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorFromID строит курсор из ULID сообщения: время создания зашито в id,
// поэтому курсор остаётся валидным даже после удаления сообщения.
func CursorFromID(id string) (*Cursor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: ulid.Time(u.Time()).UTC(), ID: u.String()}, nil
}

// Before - строго раньше курсора в порядке (created_at, id).
func (c *Cursor) Before(m *Message) bool {
	if c == nil {
		return true
	}
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.ID
	}
	return m.CreatedAt.Before(c.CreatedAt)
}
