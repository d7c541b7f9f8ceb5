package rooms

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Manager - двусторонний индекс room <-> conn под одним мьютексом.
// Пустые комнаты и соединения без комнат удаляются.
type Manager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]map[domain.ConnID]struct{} // room -> set of connections
	conns map[domain.ConnID]map[domain.RoomKey]struct{} // conn -> set of rooms
}

func NewManager() *Manager {
	return &Manager{
		rooms: make(map[domain.RoomKey]map[domain.ConnID]struct{}),
		conns: make(map[domain.ConnID]map[domain.RoomKey]struct{}),
	}
}

// Join идемпотентен; added=false, если соединение уже в комнате.
func (m *Manager) Join(conn domain.ConnID, room domain.RoomKey) (added bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.rooms[room]
	if !ok {
		rs = make(map[domain.ConnID]struct{})
		m.rooms[room] = rs
	}
	if _, ok := rs[conn]; ok {
		return false
	}
	rs[conn] = struct{}{}

	cs, ok := m.conns[conn]
	if !ok {
		cs = make(map[domain.RoomKey]struct{})
		m.conns[conn] = cs
	}
	cs[room] = struct{}{}
	return true
}

// Leave - no-op, если соединение не в комнате.
func (m *Manager) Leave(conn domain.ConnID, room domain.RoomKey) (removed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(conn, room)
}

func (m *Manager) leaveLocked(conn domain.ConnID, room domain.RoomKey) bool {
	rs, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, ok := rs[conn]; !ok {
		return false
	}
	delete(rs, conn)
	if len(rs) == 0 {
		delete(m.rooms, room)
	}
	if cs, ok := m.conns[conn]; ok {
		delete(cs, room)
		if len(cs) == 0 {
			delete(m.conns, conn)
		}
	}
	return true
}

// LeaveAll удаляет соединение из всех комнат и возвращает их список.
func (m *Manager) LeaveAll(conn domain.ConnID) []domain.RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.conns[conn]
	out := make([]domain.RoomKey, 0, len(cs))
	for room := range cs {
		out = append(out, room)
	}
	for _, room := range out {
		m.leaveLocked(conn, room)
	}
	delete(m.conns, conn)

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Members возвращает копию множества соединений комнаты.
func (m *Manager) Members(room domain.RoomKey) []domain.ConnID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs := m.rooms[room]
	out := make([]domain.ConnID, 0, len(rs))
	for c := range rs {
		out = append(out, c)
	}
	return out
}

func (m *Manager) RoomsOf(conn domain.ConnID) []domain.RoomKey {
	m.mu.RLock()
	cs := m.conns[conn]
	out := make([]domain.RoomKey, 0, len(cs))
	for room := range cs {
		out = append(out, room)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) IsMember(conn domain.ConnID, room domain.RoomKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][conn]
	return ok
}

// Len - число непустых комнат.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
