package domain

// Исходящие события сервера
const (
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventInitialPresence     = "initial_presence"
	EventMessageCreated      = "message_created"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventTypingState         = "typing_state"
	EventConversationUpdated = "conversation_updated"
	EventRoomRevoked         = "room_revoked"
	EventAck                 = "ack"
	EventError               = "error"
)

type PresencePayload struct {
	UserID UserID `json:"userId"`
}

type InitialPresencePayload struct {
	UserIDs []UserID `json:"userIds"`
}

type MessageDeletedPayload struct {
	ID             string `json:"id"`
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type TypingPayload struct {
	RoomKey  RoomKey `json:"roomKey"`
	UserID   UserID  `json:"userId"`
	IsTyping bool    `json:"isTyping"`
}

type ConversationUpdatedPayload struct {
	ConversationID string `json:"conversationId"`
	LastMessageID  string `json:"lastMessageId"`
}

type RoomRevokedPayload struct {
	RoomKey RoomKey `json:"roomKey"`
	Reason  string  `json:"reason"`
}
