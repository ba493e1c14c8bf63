package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quotebot/internal/logger"
	"quotebot/internal/repository/store"
)

// AppendMessage inserts a message row. Messages are append-only; there is no
// update or delete path.
func (p *PostgresDB) AppendMessage(ctx context.Context, msg *store.Message) error {
	query := `
	INSERT INTO messages (id, message_id, conversation_id, role, content, dify_message_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.conn.ExecContext(ctx, query,
		uuid.New().String(), msg.MessageID, msg.ConversationID,
		msg.Role, msg.Content, nullableString(msg.DifyMessageID), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.MessageID,
		"role":            msg.Role,
	}).Debug("Saved message to database")

	return nil
}

// ListMessages retrieves all messages for a conversation ordered by creation
// time ascending
func (p *PostgresDB) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	query := `
	SELECT message_id, conversation_id, role, content, COALESCE(dify_message_id, ''), created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC
	`

	rows, err := p.conn.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.DifyMessageID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
