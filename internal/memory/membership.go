package memory

import (
	"context"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Membership - явные гранты user -> room. В open-режиме доступ есть у всех.
type Membership struct {
	mu     sync.RWMutex
	open   bool
	grants map[domain.RoomKey]map[domain.UserID]struct{}
}

func NewMembership(open bool) *Membership {
	return &Membership{
		open:   open,
		grants: make(map[domain.RoomKey]map[domain.UserID]struct{}),
	}
}

func (m *Membership) Grant(room domain.RoomKey, users ...domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	us, ok := m.grants[room]
	if !ok {
		us = make(map[domain.UserID]struct{})
		m.grants[room] = us
	}
	for _, u := range users {
		us[u] = struct{}{}
	}
}

func (m *Membership) Revoke(room domain.RoomKey, user domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if us, ok := m.grants[room]; ok {
		delete(us, user)
		if len(us) == 0 {
			delete(m.grants, room)
		}
	}
}

// RevokeRoom удаляет все гранты комнаты (комната удалена).
func (m *Membership) RevokeRoom(room domain.RoomKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, room)
}

func (m *Membership) CanAccess(_ context.Context, user domain.UserID, room domain.RoomKey) (bool, error) {
	if m.open {
		return true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[room][user]
	return ok, nil
}
