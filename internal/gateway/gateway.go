package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwrk-planet/realtime-service/internal/dispatch"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/keylock"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/presence"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
	"github.com/cwrk-planet/realtime-service/internal/typing"
)

// SinkFactory создаёт исходящую сторону соединения уже после аутентификации.
type SinkFactory func(user domain.UserID) dispatch.Sink

type Gateway struct {
	auth     Authenticator
	members  domain.MembershipChecker
	presence *presence.Tracker
	rooms    *rooms.Manager
	disp     *dispatch.Dispatcher
	typing   *typing.Coordinator

	// переходы online/offline одного пользователя и их анонсы строго упорядочены
	userLocks *keylock.Locker
}

func New(
	auth Authenticator,
	members domain.MembershipChecker,
	pr *presence.Tracker,
	rm *rooms.Manager,
	disp *dispatch.Dispatcher,
	tc *typing.Coordinator,
) *Gateway {
	return &Gateway{
		auth:      auth,
		members:   members,
		presence:  pr,
		rooms:     rm,
		disp:      disp,
		typing:    tc,
		userLocks: keylock.New(),
	}
}

// Conn - допущенное соединение.
type Conn struct {
	gw     *Gateway
	sink   dispatch.Sink
	user   domain.UserID
	once   sync.Once
	closed atomic.Bool
}

func (c *Conn) ID() domain.ConnID     { return c.sink.ID() }
func (c *Conn) UserID() domain.UserID { return c.user }

// Authenticate проверяет credential без регистрации соединения.
func (g *Gateway) Authenticate(ctx context.Context, credential string) (domain.UserID, error) {
	user, err := g.auth.Authenticate(ctx, credential)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("auth").Inc()
		return "", err
	}
	return user, nil
}

// Admit аутентифицирует соединение и регистрирует его во всех подсистемах.
// При ошибке аутентификации ничего не регистрируется.
func (g *Gateway) Admit(ctx context.Context, credential string, newSink SinkFactory) (*Conn, error) {
	user, err := g.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	return g.AdmitUser(user, newSink(user)), nil
}

// AdmitUser регистрирует уже аутентифицированного пользователя: initial_presence
// этому соединению, user_online остальным, если это первое соединение.
func (g *Gateway) AdmitUser(user domain.UserID, sink dispatch.Sink) *Conn {
	c := &Conn{gw: g, sink: sink, user: user}
	id := sink.ID()

	unlock := g.userLocks.Lock(string(user))
	g.disp.Register(sink)
	g.rooms.Join(id, domain.UserRoom(user))
	first := g.presence.Register(user, id)

	if err := g.disp.ToConn(id, dispatch.Envelope{
		Type:    domain.EventInitialPresence,
		Payload: domain.InitialPresencePayload{UserIDs: g.presence.Snapshot()},
	}); err != nil {
		slog.Warn("gateway send initial presence failed", "conn", id, "user", user, "err", err)
	}
	if first {
		g.disp.ToAllExcept(id, domain.EventUserOnline, domain.PresencePayload{UserID: user})
	}
	unlock()

	metrics.ConnectionsActive.Inc()
	slog.Info("gateway connection admitted", "conn", id, "user", user, "first", first)
	return c
}

// Close - teardown соединения; выполняется ровно один раз.
func (c *Conn) Close() {
	c.once.Do(c.teardown)
}

func (c *Conn) teardown() {
	g := c.gw
	id := c.sink.ID()
	c.closed.Store(true)

	left := g.rooms.LeaveAll(id)
	g.typing.DropConn(id)
	g.disp.Unregister(id)

	unlock := g.userLocks.Lock(string(c.user))
	last := g.presence.Deregister(c.user, id)
	if last {
		g.disp.ToAllExcept(id, domain.EventUserOffline, domain.PresencePayload{UserID: c.user})
	}
	unlock()

	if err := c.sink.Close(); err != nil {
		slog.Debug("gateway sink close failed", "conn", id, "err", err)
	}
	metrics.ConnectionsActive.Dec()
	slog.Info("gateway connection closed", "conn", id, "user", c.user, "rooms", len(left), "last", last)
}

// Join проверяет доступ через membership и добавляет соединение в комнату.
// added=false, если соединение уже было в комнате.
func (c *Conn) Join(ctx context.Context, room domain.RoomKey) (added bool, err error) {
	if c.closed.Load() {
		return false, fmt.Errorf("join %s: connection closed", room)
	}
	if err := c.gw.authorize(ctx, c.user, room); err != nil {
		return false, err
	}
	added = c.gw.rooms.Join(c.ID(), room)
	if c.closed.Load() {
		c.gw.rooms.Leave(c.ID(), room)
		return false, fmt.Errorf("join %s: connection closed", room)
	}
	return added, nil
}

func (c *Conn) Leave(room domain.RoomKey) bool {
	c.gw.typing.DropConnRoom(c.ID(), room)
	return c.gw.rooms.Leave(c.ID(), room)
}

// TypingStart не требует join: достаточно доступа к комнате.
func (c *Conn) TypingStart(ctx context.Context, room domain.RoomKey) error {
	if c.closed.Load() {
		return fmt.Errorf("typing %s: connection closed", room)
	}
	if err := c.gw.authorize(ctx, c.user, room); err != nil {
		return err
	}
	c.gw.typing.Start(room, c.user, c.ID())
	return nil
}

func (c *Conn) TypingStop(ctx context.Context, room domain.RoomKey) error {
	if err := c.gw.authorize(ctx, c.user, room); err != nil {
		return err
	}
	c.gw.typing.Stop(room, c.user, c.ID())
	return nil
}

// Reply - адресный кадр этому соединению (ack / error).
func (c *Conn) Reply(env dispatch.Envelope) error {
	return c.gw.disp.ToConn(c.ID(), env)
}

func (g *Gateway) authorize(ctx context.Context, user domain.UserID, room domain.RoomKey) error {
	if room.Namespace() == domain.NamespaceUser {
		if domain.UserID(room.ID()) != user {
			return fmt.Errorf("%w: %s", domain.ErrNotAMember, room)
		}
		return nil
	}
	ok, err := g.members.CanAccess(ctx, user, room)
	if err != nil {
		return fmt.Errorf("membership check %s: %w: %v", room, domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotAMember, room)
	}
	return nil
}

// RevokeRoom уведомляет всех участников комнаты и принудительно выводит их из неё.
func (g *Gateway) RevokeRoom(room domain.RoomKey, reason string) int {
	return g.revoke(room, reason, func(dispatch.Sink) bool { return true })
}

// RevokeUserRooms - то же, но только для соединений одного пользователя.
func (g *Gateway) RevokeUserRooms(user domain.UserID, rooms []domain.RoomKey, reason string) int {
	n := 0
	for _, room := range rooms {
		n += g.revoke(room, reason, func(s dispatch.Sink) bool { return s.UserID() == user })
	}
	return n
}

func (g *Gateway) revoke(room domain.RoomKey, reason string, match func(dispatch.Sink) bool) int {
	n := 0
	for _, id := range g.rooms.Members(room) {
		s, ok := g.disp.Sink(id)
		if !ok || !match(s) {
			continue
		}
		_ = g.disp.ToConn(id, dispatch.Envelope{
			Type:    domain.EventRoomRevoked,
			Payload: domain.RoomRevokedPayload{RoomKey: room, Reason: reason},
		})
		g.typing.DropConnRoom(id, room)
		if g.rooms.Leave(id, room) {
			n++
		}
	}
	if n > 0 {
		slog.Info("gateway room revoked", "room", room, "reason", reason, "conns", n)
	}
	return n
}

func (g *Gateway) Online() []domain.UserID { return g.presence.Snapshot() }

// Shutdown закрывает транспорт всех соединений; teardown выполняют их read-циклы.
func (g *Gateway) Shutdown() {
	for _, u := range g.presence.Snapshot() {
		for _, s := range g.disp.SinksOf(u) {
			_ = s.Close()
		}
	}
}
