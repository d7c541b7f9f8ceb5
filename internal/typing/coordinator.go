package typing

import (
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

const DefaultTTL = 3 * time.Second

type Broadcaster interface {
	ToRoomExcept(room domain.RoomKey, except domain.ConnID, event string, payload any) int
}

type key struct {
	room domain.RoomKey
	user domain.UserID
}

type signal struct {
	conn  domain.ConnID
	gen   uint64
	timer *time.Timer
}

// Coordinator хранит активные сигналы набора текста только в памяти.
// Каждый сигнал живёт не дольше ttl: по таймеру рассылается isTyping=false.
type Coordinator struct {
	mu     sync.Mutex
	ttl    time.Duration
	out    Broadcaster
	active map[key]*signal
	gen    uint64
}

func NewCoordinator(out Broadcaster, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{
		ttl:    ttl,
		out:    out,
		active: make(map[key]*signal),
	}
}

// Start заменяет предыдущий сигнал пользователя в комнате и перезапускает ttl.
func (c *Coordinator) Start(room domain.RoomKey, user domain.UserID, conn domain.ConnID) {
	k := key{room: room, user: user}

	// рассылка под мьютексом: иначе истёкший таймер может обогнать более свежий Start
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.active[k]; ok {
		s.timer.Stop()
	}
	c.gen++
	g := c.gen
	s := &signal{conn: conn, gen: g}
	s.timer = time.AfterFunc(c.ttl, func() { c.expire(k, g) })
	c.active[k] = s

	c.out.ToRoomExcept(room, conn, domain.EventTypingState, domain.TypingPayload{
		RoomKey:  room,
		UserID:   user,
		IsTyping: true,
	})
}

func (c *Coordinator) Stop(room domain.RoomKey, user domain.UserID, conn domain.ConnID) {
	k := key{room: room, user: user}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.active[k]; ok {
		s.timer.Stop()
		delete(c.active, k)
	}
	c.out.ToRoomExcept(room, conn, domain.EventTypingState, domain.TypingPayload{
		RoomKey:  room,
		UserID:   user,
		IsTyping: false,
	})
}

// DropConn гасит все сигналы, начатые соединением (teardown).
func (c *Coordinator) DropConn(conn domain.ConnID) {
	c.drop(func(_ key, s *signal) bool { return s.conn == conn })
}

// DropConnRoom гасит сигнал соединения в одной комнате (leave).
func (c *Coordinator) DropConnRoom(conn domain.ConnID, room domain.RoomKey) {
	c.drop(func(k key, s *signal) bool { return s.conn == conn && k.room == room })
}

func (c *Coordinator) drop(match func(key, *signal) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, s := range c.active {
		if !match(k, s) {
			continue
		}
		s.timer.Stop()
		delete(c.active, k)
		c.out.ToRoomExcept(k.room, s.conn, domain.EventTypingState, domain.TypingPayload{
			RoomKey:  k.room,
			UserID:   k.user,
			IsTyping: false,
		})
	}
}

func (c *Coordinator) expire(k key, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.active[k]
	if !ok || s.gen != gen {
		return // сигнал уже заменён или снят
	}
	delete(c.active, k)
	c.out.ToRoomExcept(k.room, s.conn, domain.EventTypingState, domain.TypingPayload{
		RoomKey:  k.room,
		UserID:   k.user,
		IsTyping: false,
	})
}

// Active - число активных сигналов.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
