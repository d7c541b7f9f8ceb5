package postgres

import "github.com/cwrk-planet/realtime-service/internal/domain"

// cursorArgs - параметры keyset-условия; nil курсор - первая страница.
func cursorArgs(cur *domain.Cursor) (createdAt, id any) {
	if cur == nil {
		return nil, nil
	}
	return cur.CreatedAt, cur.ID
}

// targetArgs - (channel_id, conversation_id), пустое значение - NULL.
func targetArgs(t domain.Target) (channelID, conversationID any) {
	if t.IsConversation() {
		return nil, t.ConversationID
	}
	return t.ChannelID, nil
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
