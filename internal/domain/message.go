package domain

import (
	"fmt"
	"strings"
	"time"
)

const MaxContentLength = 4000

// Target - ровно одно из ChannelID / ConversationID.
type Target struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Normalize убирает пробелы вокруг id; комната и SQL строятся только из нормализованного target.
func (t Target) Normalize() Target {
	return Target{
		ChannelID:      strings.TrimSpace(t.ChannelID),
		ConversationID: strings.TrimSpace(t.ConversationID),
	}
}

func (t Target) Validate() error {
	n := t.Normalize()
	if (n.ChannelID == "") == (n.ConversationID == "") {
		return fmt.Errorf("%w: exactly one of channelId or conversationId is required", ErrInvalidMessage)
	}
	return nil
}

func (t Target) IsConversation() bool { return t.ConversationID != "" }

func (t Target) RoomKey() RoomKey {
	if t.IsConversation() {
		return ConversationRoom(t.ConversationID)
	}
	return ChannelRoom(t.ChannelID)
}

func (t Target) String() string { return t.RoomKey().String() }

type Message struct {
	ID            string      `json:"id"`
	AuthorID      UserID      `json:"authorId"`
	ChannelID     string      `json:"channelId,omitempty"`
	ConvID        string      `json:"conversationId,omitempty"`
	Content       string      `json:"content"`
	AttachmentURL *string     `json:"attachmentUrl,omitempty"`
	ReplyToID     *string     `json:"replyToId,omitempty"`
	ReplyTo       *MessageRef `json:"replyTo"`
	CreatedAt     time.Time   `json:"createdAt"`
	EditedAt      *time.Time  `json:"editedAt,omitempty"`
}

func (m *Message) Target() Target {
	return Target{ChannelID: m.ChannelID, ConversationID: m.ConvID}
}

// MessageRef - превью сообщения, на которое отвечают.
type MessageRef struct {
	ID            string    `json:"id"`
	AuthorID      UserID    `json:"authorId"`
	Content       string    `json:"content"`
	AttachmentURL *string   `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (m *Message) Ref() *MessageRef {
	return &MessageRef{
		ID:            m.ID,
		AuthorID:      m.AuthorID,
		Content:       m.Content,
		AttachmentURL: m.AttachmentURL,
		CreatedAt:     m.CreatedAt,
	}
}

// NormalizeContent обрезает пробелы и проверяет длину.
// Пустой текст допустим только с вложением.
func NormalizeContent(content string, attachmentURL *string) (string, error) {
	content = strings.TrimSpace(content)
	hasAttachment := attachmentURL != nil && strings.TrimSpace(*attachmentURL) != ""
	if content == "" && !hasAttachment {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if len([]rune(content)) > MaxContentLength {
		return "", fmt.Errorf("%w: content longer than %d characters", ErrInvalidMessage, MaxContentLength)
	}
	return content, nil
}
