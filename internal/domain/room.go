package domain

import (
	"fmt"
	"strings"
)

type (
	UserID string
	ConnID string
)

// RoomKey - ключ комнаты вида "<namespace>:<id>".
type RoomKey string

const (
	NamespaceChannel      = "channel"
	NamespaceConversation = "conversation"
	NamespaceServer       = "server"
	NamespaceUser         = "user"
)

func ChannelRoom(id string) RoomKey      { return RoomKey(NamespaceChannel + ":" + id) }
func ConversationRoom(id string) RoomKey { return RoomKey(NamespaceConversation + ":" + id) }
func ServerRoom(id string) RoomKey       { return RoomKey(NamespaceServer + ":" + id) }
func UserRoom(id UserID) RoomKey         { return RoomKey(NamespaceUser + ":" + string(id)) }

// ParseRoomKey проверяет namespace и непустой id.
func ParseRoomKey(s string) (RoomKey, error) {
	ns, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoom, s)
	}
	switch ns {
	case NamespaceChannel, NamespaceConversation, NamespaceServer, NamespaceUser:
	default:
		return "", fmt.Errorf("%w: unknown namespace %q", ErrInvalidRoom, ns)
	}
	return RoomKey(ns + ":" + id), nil
}

func (k RoomKey) Namespace() string {
	ns, _, _ := strings.Cut(string(k), ":")
	return ns
}

func (k RoomKey) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

func (k RoomKey) String() string { return string(k) }
