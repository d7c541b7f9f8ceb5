package http

import "github.com/cwrk-planet/realtime-service/internal/domain"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type CreateMessageRequest struct {
	ChannelID      string  `json:"channelId,omitempty"`
	ConversationID string  `json:"conversationId,omitempty"`
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachmentUrl,omitempty"`
	ReplyToID      *string `json:"replyToId,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type DeleteMessageResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type PresenceResponse struct {
	UserIDs []domain.UserID `json:"userIds"`
}

type EventAcceptedResponse struct {
	Status string `json:"status"`
}
