package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	ch, cv := targetArgs(m.Target())
	if _, err := r.db.Exec(ctx, qInsertMessage,
		m.ID, string(m.AuthorID), ch, cv, m.Content, nullable(m.AttachmentURL), nullable(m.ReplyToID), m.CreatedAt,
	); err != nil {
		return err
	}
	if m.ReplyToID == nil {
		return nil
	}

	// превью ответа для события message_created
	saved, err := r.Get(ctx, m.ID)
	if err != nil {
		return nil // сообщение уже сохранено, превью не критично
	}
	m.ReplyTo = saved.ReplyTo
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qGetMessage, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*domain.Message, error) {
	tag, err := r.db.Exec(ctx, qUpdateContent, id, content, editedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete - жёсткое удаление; возвращает удалённую строку.
func (r *MessageRepository) Delete(ctx context.Context, id string) (*domain.Message, error) {
	var (
		m        domain.Message
		author   string
		ch, cv   *string
		editedAt *time.Time
	)
	err := r.db.QueryRow(ctx, qDeleteMessage, id).Scan(
		&m.ID, &author, &ch, &cv, &m.Content, &m.AttachmentURL, &m.ReplyToID, &m.CreatedAt, &editedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	m.AuthorID = domain.UserID(author)
	m.ChannelID, m.ConvID = deref(ch), deref(cv)
	m.CreatedAt = m.CreatedAt.UTC()
	m.EditedAt = utcPtr(editedAt)
	return &m, nil
}

// Page возвращает страницу сообщений target с keyset-пагинацией (created_at,id DESC).
func (r *MessageRepository) Page(ctx context.Context, target domain.Target, before *domain.Cursor, limit int) ([]domain.Message, error) {
	ch, cv := targetArgs(target)
	createdAt, id := cursorArgs(before)

	rows, err := r.db.Query(ctx, qPageMessages, ch, cv, createdAt, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return Ping(ctx, r.db)
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m        domain.Message
		author   string
		ch, cv   *string
		editedAt *time.Time

		refID, refAuthor, refContent, refAttachment *string
		refCreatedAt                                *time.Time
	)
	if err := row.Scan(
		&m.ID, &author, &ch, &cv, &m.Content, &m.AttachmentURL, &m.ReplyToID, &m.CreatedAt, &editedAt,
		&refID, &refAuthor, &refContent, &refAttachment, &refCreatedAt,
	); err != nil {
		return nil, err
	}
	m.AuthorID = domain.UserID(author)
	m.ChannelID, m.ConvID = deref(ch), deref(cv)
	m.CreatedAt = m.CreatedAt.UTC()
	m.EditedAt = utcPtr(editedAt)

	if refID != nil {
		m.ReplyTo = &domain.MessageRef{
			ID:            *refID,
			AuthorID:      domain.UserID(deref(refAuthor)),
			Content:       deref(refContent),
			AttachmentURL: refAttachment,
		}
		if refCreatedAt != nil {
			m.ReplyTo.CreatedAt = refCreatedAt.UTC()
		}
	}
	return &m, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
