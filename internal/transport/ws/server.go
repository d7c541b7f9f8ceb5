package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/dispatch"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/gateway"
	"github.com/cwrk-planet/realtime-service/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errBadRequest = errors.New("bad request")

type ChatSvc interface {
	Create(ctx context.Context, author domain.UserID, in service.CreateInput) (*domain.Message, error)
	Edit(ctx context.Context, user domain.UserID, id, content string) (*domain.Message, error)
	Delete(ctx context.Context, user domain.UserID, id string) (bool, error)
	History(ctx context.Context, user domain.UserID, target domain.Target, beforeID string, limit int) (*service.Page, error)
}

type Options struct {
	SendQueueSize  int
	PingEvery      time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	OpTimeout      time.Duration
	CheckOrigin    func(r *http.Request) bool
}

type Server struct {
	upgrader websocket.Upgrader
	gw       *gateway.Gateway
	chatSvc  ChatSvc
	opts     Options
}

func NewServer(gw *gateway.Gateway, chat ChatSvc, opts Options) *Server {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	if opts.PingEvery <= 0 {
		opts.PingEvery = 15 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &Server{
		gw:      gw,
		chatSvc: chat,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// WS endpoint: GET /ws?access_token=... (или Authorization: Bearer ...)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	user, err := s.gw.Authenticate(r.Context(), Credential(r))
	if err != nil {
		slog.Info("ws auth rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, domain.Code(err), http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "user", user, "err", err)
		return
	}

	// presence анонсируется только после успешного апгрейда
	cl := newClient(domain.ConnID(uuid.NewString()), user, s.opts.SendQueueSize)
	cl.attach(wsConn)
	conn := s.gw.AdmitUser(user, cl)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.writeLoop(cl)
	s.readLoop(ctx, conn, cl)
}

// Credential - токен из query access_token либо заголовка Authorization.
func Credential(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (s *Server) readLoop(ctx context.Context, conn *gateway.Conn, c *client) {
	defer func() { _ = c.Close() }()

	ws := c.conn
	ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "user", c.user, "err", err)
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.replyErr(conn, "", fmt.Errorf("%w: %v", errBadRequest, err))
			continue
		}
		s.handle(ctx, conn, in)
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.opts.PingEvery)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	ws := c.conn
	for {
		select {
		case data := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				return
			}
		case <-c.done():
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, conn *gateway.Conn, in Inbound) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	user := conn.UserID()
	switch in.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeTypingStart, TypeTypingStop:
		var p RoomPayload
		if err := decode(in.Payload, &p); err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		room, err := domain.ParseRoomKey(p.RoomKey)
		if err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		s.reply(conn, in.ID, func() (any, error) {
			switch in.Type {
			case TypeJoinRoom:
				added, err := conn.Join(ctx, room)
				return RoomAck{RoomKey: room, Changed: added}, err
			case TypeLeaveRoom:
				return RoomAck{RoomKey: room, Changed: conn.Leave(room)}, nil
			case TypeTypingStart:
				return RoomAck{RoomKey: room}, conn.TypingStart(ctx, room)
			default:
				return RoomAck{RoomKey: room}, conn.TypingStop(ctx, room)
			}
		})

	case TypeCreateMessage:
		var p CreateMessagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		s.reply(conn, in.ID, func() (any, error) {
			return s.chatSvc.Create(ctx, user, service.CreateInput{
				Target:        domain.Target{ChannelID: p.ChannelID, ConversationID: p.ConversationID},
				Content:       p.Content,
				AttachmentURL: p.AttachmentURL,
				ReplyToID:     p.ReplyToID,
			})
		})

	case TypeEditMessage:
		var p EditMessagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		s.reply(conn, in.ID, func() (any, error) {
			return s.chatSvc.Edit(ctx, user, p.MessageID, p.Content)
		})

	case TypeDeleteMessage:
		var p DeleteMessagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		s.reply(conn, in.ID, func() (any, error) {
			deleted, err := s.chatSvc.Delete(ctx, user, p.MessageID)
			return DeleteAck{ID: p.MessageID, Deleted: deleted}, err
		})

	case TypeFetchPage:
		var p FetchPagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.replyErr(conn, in.ID, err)
			return
		}
		s.reply(conn, in.ID, func() (any, error) {
			target := domain.Target{ChannelID: p.ChannelID, ConversationID: p.ConversationID}
			return s.chatSvc.History(ctx, user, target, p.BeforeID, p.Limit)
		})

	default:
		s.replyErr(conn, in.ID, fmt.Errorf("%w: unknown request type %q", errBadRequest, in.Type))
	}
}

// reply выполняет fn и отвечает ack (только если есть id) либо error.
func (s *Server) reply(conn *gateway.Conn, id string, fn func() (any, error)) {
	result, err := fn()
	if err != nil {
		s.replyErr(conn, id, err)
		return
	}
	if id == "" {
		return
	}
	if err := conn.Reply(dispatch.Envelope{Type: domain.EventAck, ID: id, Payload: result}); err != nil {
		slog.Debug("ws ack failed", "conn", conn.ID(), "err", err)
	}
}

func (s *Server) replyErr(conn *gateway.Conn, id string, err error) {
	code := domain.Code(err)
	if errors.Is(err, errBadRequest) {
		code = "bad_request"
	}
	if rerr := conn.Reply(dispatch.Envelope{
		Type:    domain.EventError,
		ID:      id,
		Payload: ErrorPayload{Code: code, Message: err.Error()},
	}); rerr != nil {
		slog.Debug("ws error reply failed", "conn", conn.ID(), "err", rerr)
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", domain.ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	return nil
}
