// Package memory - in-process реализации хранилища сообщений и membership.
// Используются при store.backend=memory и в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Message
	byTarget map[domain.RoomKey][]*domain.Message // по возрастанию (created_at, id)
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID:     make(map[string]*domain.Message),
		byTarget: make(map[domain.RoomKey][]*domain.Message),
	}
}

func less(a, b *domain.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *MessageStore) Create(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byID[m.ID]; dup {
		return fmt.Errorf("memory: duplicate message id %s", m.ID)
	}
	cp := *m
	cp.ReplyTo = nil
	s.byID[cp.ID] = &cp

	key := cp.Target().RoomKey()
	list := s.byTarget[key]
	i := sort.Search(len(list), func(i int) bool { return less(&cp, list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	s.byTarget[key] = list

	m.ReplyTo = s.resolveLocked(&cp)
	return nil
}

func (s *MessageStore) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.viewLocked(m), nil
}

func (s *MessageStore) UpdateContent(_ context.Context, id, content string, editedAt time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.Content = content
	at := editedAt
	m.EditedAt = &at
	return s.viewLocked(m), nil
}

func (s *MessageStore) Delete(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.byID, id)

	key := m.Target().RoomKey()
	list := s.byTarget[key]
	for i, x := range list {
		if x.ID == id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byTarget, key)
	} else {
		s.byTarget[key] = list
	}

	cp := *m
	return &cp, nil
}

// Page - не более limit сообщений строго раньше курсора, от новых к старым.
func (s *MessageStore) Page(_ context.Context, target domain.Target, before *domain.Cursor, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byTarget[target.RoomKey()]
	end := len(list)
	if before != nil {
		end = sort.Search(len(list), func(i int) bool { return !before.Before(list[i]) })
	}

	out := make([]domain.Message, 0, min(limit, end))
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.viewLocked(list[i]))
	}
	return out, nil
}

func (s *MessageStore) Ping(context.Context) error { return nil }

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MessageStore) viewLocked(m *domain.Message) *domain.Message {
	cp := *m
	cp.ReplyTo = s.resolveLocked(m)
	return &cp
}

// resolveLocked: исчезнувший или чужой reply-to даёт nil, а не ошибку.
func (s *MessageStore) resolveLocked(m *domain.Message) *domain.MessageRef {
	if m.ReplyToID == nil {
		return nil
	}
	r, ok := s.byID[*m.ReplyToID]
	if !ok || r.Target() != m.Target() {
		return nil
	}
	return r.Ref()
}
