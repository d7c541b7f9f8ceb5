package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/keylock"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*domain.Message, error)
	Delete(ctx context.Context, id string) (*domain.Message, error)
	Page(ctx context.Context, target domain.Target, before *domain.Cursor, limit int) ([]domain.Message, error)
	Ping(ctx context.Context) error
}

type Dispatcher interface {
	ToRoom(room domain.RoomKey, event string, payload any) int
}

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

type ChatService struct {
	store   MessageStore
	members domain.MembershipChecker
	out     Dispatcher
	ids     *IDGenerator

	// id, commit и рассылка одного target идут под одной блокировкой
	targetLocks *keylock.Locker

	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

func NewChatService(store MessageStore, members domain.MembershipChecker, out Dispatcher, cfg Config) *ChatService {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxPageLimit
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(DefaultPageLimit, cfg.MaxLimit)
	}
	return &ChatService{
		store:        store,
		members:      members,
		out:          out,
		ids:          NewIDGenerator(),
		targetLocks:  keylock.New(),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		now:          time.Now,
	}
}

type CreateInput struct {
	Target        domain.Target
	Content       string
	AttachmentURL *string
	ReplyToID     *string
}

// Create сохраняет сообщение и после коммита рассылает message_created в комнату target.
func (s *ChatService) Create(ctx context.Context, author domain.UserID, in CreateInput) (*domain.Message, error) {
	in.Target = in.Target.Normalize()
	if err := in.Target.Validate(); err != nil {
		return nil, err
	}
	in.AttachmentURL = trimmed(in.AttachmentURL)
	content, err := domain.NormalizeContent(in.Content, in.AttachmentURL)
	if err != nil {
		return nil, err
	}
	room := in.Target.RoomKey()
	if err := s.authorize(ctx, author, room); err != nil {
		return nil, err
	}
	replyTo := trimmed(in.ReplyToID)
	if replyTo != nil {
		s.checkReply(ctx, in.Target, *replyTo)
	}

	unlock := s.targetLocks.Lock(room.String())
	defer unlock()

	id, createdAt := s.ids.New()
	m := &domain.Message{
		ID:            id,
		AuthorID:      author,
		ChannelID:     in.Target.ChannelID,
		ConvID:        in.Target.ConversationID,
		Content:       content,
		AttachmentURL: in.AttachmentURL,
		ReplyToID:     replyTo,
		CreatedAt:     createdAt,
	}

	start := time.Now()
	err = s.store.Create(ctx, m)
	metrics.StoreLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("chat.Create: store failed", "room", room, "author", author, "err", err)
		return nil, fmt.Errorf("%w: create: %v", domain.ErrStoreUnavailable, err)
	}
	metrics.MessagesCreated.WithLabelValues(room.Namespace()).Inc()

	s.out.ToRoom(room, domain.EventMessageCreated, m)
	if in.Target.IsConversation() {
		s.out.ToRoom(room, domain.EventConversationUpdated, domain.ConversationUpdatedPayload{
			ConversationID: in.Target.ConversationID,
			LastMessageID:  m.ID,
		})
	}
	return m, nil
}

// checkReply - мягкая проверка: неизвестный или чужой reply-to только логируется.
func (s *ChatService) checkReply(ctx context.Context, target domain.Target, replyID string) {
	parent, err := s.store.Get(ctx, replyID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		slog.Warn("chat.Create: reply target not found", "reply_to", replyID, "target", target)
	case err != nil:
		slog.Warn("chat.Create: reply target lookup failed", "reply_to", replyID, "err", err)
	case parent.Target() != target:
		slog.Warn("chat.Create: reply target belongs to another room", "reply_to", replyID, "target", target)
	}
}

// Edit - только автор; отсутствие сообщения - ErrNotFound.
func (s *ChatService) Edit(ctx context.Context, user domain.UserID, id, content string) (*domain.Message, error) {
	cur, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.AuthorID != user {
		return nil, domain.ErrForbidden
	}
	content, err = domain.NormalizeContent(content, cur.AttachmentURL)
	if err != nil {
		return nil, err
	}

	room := cur.Target().RoomKey()
	unlock := s.targetLocks.Lock(room.String())
	defer unlock()

	start := time.Now()
	m, err := s.store.UpdateContent(ctx, id, content, s.now().UTC())
	metrics.StoreLatency.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		slog.Error("chat.Edit: store failed", "id", id, "err", err)
		return nil, fmt.Errorf("%w: update: %v", domain.ErrStoreUnavailable, err)
	}

	s.out.ToRoom(room, domain.EventMessageUpdated, m)
	return m, nil
}

// Delete - только автор. Удаление несуществующего сообщения - не ошибка (deleted=false).
func (s *ChatService) Delete(ctx context.Context, user domain.UserID, id string) (bool, error) {
	cur, err := s.get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.AuthorID != user {
		return false, domain.ErrForbidden
	}

	room := cur.Target().RoomKey()
	unlock := s.targetLocks.Lock(room.String())
	defer unlock()

	start := time.Now()
	m, err := s.store.Delete(ctx, id)
	metrics.StoreLatency.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil // удалили параллельно
		}
		slog.Error("chat.Delete: store failed", "id", id, "err", err)
		return false, fmt.Errorf("%w: delete: %v", domain.ErrStoreUnavailable, err)
	}

	s.out.ToRoom(room, domain.EventMessageDeleted, domain.MessageDeletedPayload{
		ID:             m.ID,
		ChannelID:      m.ChannelID,
		ConversationID: m.ConvID,
	})
	return true, nil
}

type Page struct {
	Items      []domain.Message `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// History - страница сообщений строго раньше beforeID, от новых к старым.
// Неполная страница означает конец истории.
func (s *ChatService) History(ctx context.Context, user domain.UserID, target domain.Target, beforeID string, limit int) (*Page, error) {
	target = target.Normalize()
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, user, target.RoomKey()); err != nil {
		return nil, err
	}
	cur, err := domain.CursorFromID(beforeID)
	if err != nil {
		return nil, err
	}
	limit = s.clamp(limit)

	start := time.Now()
	items, err := s.store.Page(ctx, target, cur, limit)
	metrics.StoreLatency.WithLabelValues("page").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("chat.History: store failed", "target", target, "err", err)
		return nil, fmt.Errorf("%w: page: %v", domain.ErrStoreUnavailable, err)
	}
	if items == nil {
		items = []domain.Message{}
	}

	p := &Page{Items: items}
	if len(items) == limit {
		p.NextCursor = items[len(items)-1].ID
	}
	return p, nil
}

func (s *ChatService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ChatService) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

func (s *ChatService) get(ctx context.Context, id string) (*domain.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrInvalidMessage)
	}
	m, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get: %v", domain.ErrStoreUnavailable, err)
	}
	return m, nil
}

func (s *ChatService) authorize(ctx context.Context, user domain.UserID, room domain.RoomKey) error {
	ok, err := s.members.CanAccess(ctx, user, room)
	if err != nil {
		return fmt.Errorf("membership check %s: %w: %v", room, domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotAMember, room)
	}
	return nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
