package presence

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Tracker - user -> множество активных соединений. Пустые записи удаляются.
type Tracker struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[domain.ConnID]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[domain.UserID]map[domain.ConnID]struct{})}
}

// Register добавляет соединение; first=true, если до этого у пользователя не было соединений.
func (t *Tracker) Register(user domain.UserID, conn domain.ConnID) (first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cs, ok := t.users[user]
	if !ok {
		cs = make(map[domain.ConnID]struct{})
		t.users[user] = cs
	}
	if _, dup := cs[conn]; dup {
		return false
	}
	cs[conn] = struct{}{}
	return len(cs) == 1
}

// Deregister удаляет соединение; wasLast=true, если оно было последним.
// Неизвестное соединение - no-op.
func (t *Tracker) Deregister(user domain.UserID, conn domain.ConnID) (wasLast bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cs, ok := t.users[user]
	if !ok {
		return false
	}
	if _, ok := cs[conn]; !ok {
		return false
	}
	delete(cs, conn)
	if len(cs) == 0 {
		delete(t.users, user)
		return true
	}
	return false
}

func (t *Tracker) IsOnline(user domain.UserID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users[user]) > 0
}

func (t *Tracker) ConnCount(user domain.UserID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users[user])
}

// Snapshot - отсортированный список online-пользователей.
func (t *Tracker) Snapshot() []domain.UserID {
	t.mu.RLock()
	out := make([]domain.UserID, 0, len(t.users))
	for u := range t.users {
		out = append(out, u)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
