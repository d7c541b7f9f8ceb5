package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Типы запросов, которые поступают в WS
const (
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeCreateMessage = "create_message"
	TypeEditMessage   = "edit_message"
	TypeDeleteMessage = "delete_message"
	TypeTypingStart   = "typing_start"
	TypeTypingStop    = "typing_stop"
	TypeFetchPage     = "fetch_page"
)

// Inbound - кадр клиента; ID нужен для корреляции ack/error.
type Inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomKey string `json:"roomKey"`
}

type CreateMessagePayload struct {
	ChannelID      string  `json:"channelId,omitempty"`
	ConversationID string  `json:"conversationId,omitempty"`
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachmentUrl,omitempty"`
	ReplyToID      *string `json:"replyToId,omitempty"`
}

type EditMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

type FetchPagePayload struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	BeforeID       string `json:"beforeId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type RoomAck struct {
	RoomKey domain.RoomKey `json:"roomKey"`
	Changed bool           `json:"changed"`
}

type DeleteAck struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
