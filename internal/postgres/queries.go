package postgres

const messageColumns = `
	m.id, m.author_id, m.channel_id, m.conversation_id, m.content, m.attachment_url,
	m.reply_to_id, m.created_at, m.edited_at,
	r.id, r.author_id, r.content, r.attachment_url, r.created_at`

// reply-to резолвится только в пределах того же target; удалённый - NULL
const replyJoin = `
	LEFT JOIN messages r
	  ON r.id = m.reply_to_id
	 AND r.channel_id IS NOT DISTINCT FROM m.channel_id
	 AND r.conversation_id IS NOT DISTINCT FROM m.conversation_id`

const (
	qInsertMessage = `
		INSERT INTO messages (id, author_id, channel_id, conversation_id, content, attachment_url, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	qGetMessage = `SELECT` + messageColumns + `
		FROM messages m` + replyJoin + `
		WHERE m.id = $1`

	qUpdateContent = `
		UPDATE messages SET content = $2, edited_at = $3
		WHERE id = $1`

	qDeleteMessage = `
		DELETE FROM messages
		WHERE id = $1
		RETURNING id, author_id, channel_id, conversation_id, content, attachment_url, reply_to_id, created_at, edited_at`

	// $1 - channel_id, $2 - conversation_id (ровно один не NULL)
	qPageMessages = `SELECT` + messageColumns + `
		FROM messages m` + replyJoin + `
		WHERE (($1::text IS NOT NULL AND m.channel_id = $1)
		    OR ($2::text IS NOT NULL AND m.conversation_id = $2))
		  AND (
		    $3::timestamptz IS NULL
		    OR m.created_at < $3
		    OR (m.created_at = $3 AND m.id < $4)
		  )
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $5`
)

// Membership: таблицы принадлежат CRUD-сервису.
const (
	qChannelMember = `
		SELECT EXISTS (
			SELECT 1
			FROM channels ch
			JOIN categories c ON c.id = ch.category_id
			JOIN members mb ON mb.server_id = c.server_id
			WHERE ch.id = $1 AND mb.user_id = $2
		)`

	qConversationParticipant = `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`

	qServerMember = `
		SELECT EXISTS (
			SELECT 1 FROM members
			WHERE server_id = $1 AND user_id = $2
		)`

	qServerChannels = `
		SELECT ch.id
		FROM channels ch
		JOIN categories c ON c.id = ch.category_id
		WHERE c.server_id = $1`
)
