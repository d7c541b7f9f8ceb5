// Package collab принимает события внешнего CRUD-сервиса (удаление комнат, исключение участников)
// и превращает их в принудительный выход соединений из комнат.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
)

const (
	EventChannelDeleted      = "channel_deleted"
	EventConversationDeleted = "conversation_deleted"
	EventServerDeleted       = "server_deleted"
	EventMemberRemoved       = "member_removed"
)

var ErrInvalidEvent = errors.New("invalid collaborator event")

type Event struct {
	Type           string        `json:"type"`
	ServerID       string        `json:"serverId,omitempty"`
	ChannelID      string        `json:"channelId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	UserID         domain.UserID `json:"userId,omitempty"`
	ChannelIDs     []string      `json:"channelIds,omitempty"` // каналы сервера, если известны отправителю
}

func (e Event) Validate() error {
	switch e.Type {
	case EventChannelDeleted:
		if e.ChannelID == "" {
			return fmt.Errorf("%w: %s requires channelId", ErrInvalidEvent, e.Type)
		}
	case EventConversationDeleted:
		if e.ConversationID == "" {
			return fmt.Errorf("%w: %s requires conversationId", ErrInvalidEvent, e.Type)
		}
	case EventServerDeleted:
		if e.ServerID == "" {
			return fmt.Errorf("%w: %s requires serverId", ErrInvalidEvent, e.Type)
		}
	case EventMemberRemoved:
		if e.ServerID == "" || e.UserID == "" {
			return fmt.Errorf("%w: %s requires serverId and userId", ErrInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

type Revoker interface {
	RevokeRoom(room domain.RoomKey, reason string) int
	RevokeUserRooms(user domain.UserID, rooms []domain.RoomKey, reason string) int
}

// ChannelLister - каналы сервера, когда событие их не перечисляет.
type ChannelLister interface {
	ServerChannels(ctx context.Context, serverID string) ([]string, error)
}

type Handler struct {
	rev      Revoker
	channels ChannelLister // может быть nil
}

func NewHandler(rev Revoker, channels ChannelLister) *Handler {
	return &Handler{rev: rev, channels: channels}
}

// Handle возвращает число соединений, выведенных из комнат.
func (h *Handler) Handle(ctx context.Context, ev Event, source string) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	metrics.CollabEvents.WithLabelValues(ev.Type, source).Inc()

	n := 0
	switch ev.Type {
	case EventChannelDeleted:
		n = h.rev.RevokeRoom(domain.ChannelRoom(ev.ChannelID), ev.Type)

	case EventConversationDeleted:
		n = h.rev.RevokeRoom(domain.ConversationRoom(ev.ConversationID), ev.Type)

	case EventServerDeleted:
		n = h.rev.RevokeRoom(domain.ServerRoom(ev.ServerID), ev.Type)
		for _, id := range ev.ChannelIDs {
			n += h.rev.RevokeRoom(domain.ChannelRoom(id), ev.Type)
		}

	case EventMemberRemoved:
		rooms := []domain.RoomKey{domain.ServerRoom(ev.ServerID)}
		for _, id := range h.serverChannels(ctx, ev) {
			rooms = append(rooms, domain.ChannelRoom(id))
		}
		n = h.rev.RevokeUserRooms(ev.UserID, rooms, ev.Type)
	}

	slog.Info("collab event handled", "type", ev.Type, "source", source, "conns", n)
	return n, nil
}

func (h *Handler) serverChannels(ctx context.Context, ev Event) []string {
	if len(ev.ChannelIDs) > 0 || h.channels == nil {
		return ev.ChannelIDs
	}
	ids, err := h.channels.ServerChannels(ctx, ev.ServerID)
	if err != nil {
		slog.Warn("collab list server channels failed", "server", ev.ServerID, "err", err)
		return nil
	}
	return ids
}

// Publish обрабатывает событие на этом узле (без Redis).
func (h *Handler) Publish(ctx context.Context, ev Event) error {
	_, err := h.Handle(ctx, ev, "local")
	return err
}
