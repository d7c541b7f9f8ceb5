package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
)

// Dispatcher рассылает события участникам комнат. At-most-once, best-effort:
// без ретраев и без персистентности. Ошибка одного sink не прерывает рассылку.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks map[domain.ConnID]Sink

	rooms    *rooms.Manager
	overflow Overflow
}

func New(rm *rooms.Manager, overflow Overflow) *Dispatcher {
	if overflow == "" {
		overflow = OverflowDisconnect
	}
	return &Dispatcher{
		sinks:    make(map[domain.ConnID]Sink),
		rooms:    rm,
		overflow: overflow,
	}
}

func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[s.ID()] = s
}

func (d *Dispatcher) Unregister(id domain.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sinks, id)
}

func (d *Dispatcher) Sink(id domain.ConnID) (Sink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sinks[id]
	return s, ok
}

// SinksOf - все соединения пользователя.
func (d *Dispatcher) SinksOf(user domain.UserID) []Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Sink
	for _, s := range d.sinks {
		if s.UserID() == user {
			out = append(out, s)
		}
	}
	return out
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks)
}

// ToRoom возвращает число соединений, принявших событие.
func (d *Dispatcher) ToRoom(room domain.RoomKey, event string, payload any) int {
	return d.ToRoomExcept(room, "", event, payload)
}

func (d *Dispatcher) ToRoomExcept(room domain.RoomKey, except domain.ConnID, event string, payload any) int {
	members := d.rooms.Members(room)
	if len(members) == 0 {
		return 0
	}
	data, err := Encode(event, payload)
	if err != nil {
		slog.Error("dispatch encode failed", "event", event, "room", room, "err", err)
		return 0
	}

	targets := make([]Sink, 0, len(members))
	d.mu.RLock()
	for _, id := range members {
		if id == except {
			continue
		}
		if s, ok := d.sinks[id]; ok {
			targets = append(targets, s)
		}
	}
	d.mu.RUnlock()

	return d.fanout(targets, event, data)
}

func (d *Dispatcher) ToUser(user domain.UserID, event string, payload any) int {
	return d.ToRoom(domain.UserRoom(user), event, payload)
}

// ToAllExcept - всем зарегистрированным соединениям, кроме except (presence-анонсы).
func (d *Dispatcher) ToAllExcept(except domain.ConnID, event string, payload any) int {
	data, err := Encode(event, payload)
	if err != nil {
		slog.Error("dispatch encode failed", "event", event, "err", err)
		return 0
	}

	d.mu.RLock()
	targets := make([]Sink, 0, len(d.sinks))
	for id, s := range d.sinks {
		if id != except {
			targets = append(targets, s)
		}
	}
	d.mu.RUnlock()

	return d.fanout(targets, event, data)
}

// ToConn - адресная отправка (ответы, initial_presence).
func (d *Dispatcher) ToConn(conn domain.ConnID, env Envelope) error {
	s, ok := d.Sink(conn)
	if !ok {
		return fmt.Errorf("connection %s is not registered", conn)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	if err := s.Send(data); err != nil {
		d.onSendError(s, env.Type, err)
		return err
	}
	metrics.EventsDelivered.WithLabelValues(env.Type).Inc()
	return nil
}

func (d *Dispatcher) fanout(targets []Sink, event string, data []byte) int {
	delivered := 0
	for _, s := range targets {
		if err := s.Send(data); err != nil {
			d.onSendError(s, event, err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		metrics.EventsDelivered.WithLabelValues(event).Add(float64(delivered))
	}
	return delivered
}

func (d *Dispatcher) onSendError(s Sink, event string, err error) {
	if !errors.Is(err, ErrQueueFull) {
		metrics.EventsDropped.WithLabelValues(event, "closed").Inc()
		slog.Debug("dispatch send failed", "conn", s.ID(), "event", event, "err", err)
		return
	}
	metrics.EventsDropped.WithLabelValues(event, "queue_full").Inc()
	if d.overflow != OverflowDisconnect {
		slog.Debug("dispatch dropped event for slow consumer", "conn", s.ID(), "event", event)
		return
	}
	slog.Warn("disconnecting slow consumer", "conn", s.ID(), "user", s.UserID(), "event", event)
	if cerr := s.Close(); cerr != nil {
		slog.Debug("slow consumer close failed", "conn", s.ID(), "err", cerr)
	}
}
