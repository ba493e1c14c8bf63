package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quotebot/internal/logger"
	"quotebot/internal/repository/store"
)

// SaveConversation inserts the conversation record, updating it in place on
// conflict so repeated write-through saves stay idempotent on the same key
func (p *PostgresDB) SaveConversation(ctx context.Context, conv *store.Conversation) error {
	contextJSON, err := json.Marshal(conv.InitialContext)
	if err != nil {
		return fmt.Errorf("error encoding initial context: %w", err)
	}

	query := `
	INSERT INTO conversations (id, conversation_id, session_id, dify_conversation_id, status, delivery_status, initial_context, message_count, created_at, updated_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (conversation_id) DO UPDATE SET
		dify_conversation_id = EXCLUDED.dify_conversation_id,
		status = EXCLUDED.status,
		delivery_status = EXCLUDED.delivery_status,
		message_count = EXCLUDED.message_count,
		updated_at = EXCLUDED.updated_at,
		completed_at = EXCLUDED.completed_at
	`

	_, err = p.conn.ExecContext(ctx, query,
		uuid.New().String(), conv.ConversationID, conv.SessionID,
		nullableString(conv.DifyConversationID), string(conv.Status), string(conv.DeliveryStatus),
		contextJSON, conv.MessageCount, conv.CreatedAt, conv.UpdatedAt, conv.CompletedAt)
	if err != nil {
		return fmt.Errorf("error saving conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conv.ConversationID,
		"session_id":      conv.SessionID,
		"status":          conv.Status,
	}).Debug("Saved conversation to database")

	return nil
}

// UpdateConversation applies a partial update to the conversation row,
// keyed by conversation id; untouched fields keep their stored values
func (p *PostgresDB) UpdateConversation(ctx context.Context, conversationID string, update store.ConversationUpdate) error {
	sets := []string{}
	args := []interface{}{}
	arg := 1

	addSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, arg))
		args = append(args, value)
		arg++
	}

	if update.DifyConversationID != nil {
		addSet("dify_conversation_id", *update.DifyConversationID)
	}
	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.DeliveryStatus != nil {
		addSet("delivery_status", string(*update.DeliveryStatus))
	}
	if update.MessageCount != nil {
		addSet("message_count", *update.MessageCount)
	}
	if update.CompletedAt != nil {
		addSet("completed_at", *update.CompletedAt)
	}
	if update.UpdatedAt != nil {
		addSet("updated_at", *update.UpdatedAt)
	} else {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	}

	query := fmt.Sprintf(
		"UPDATE conversations SET %s WHERE conversation_id = $%d",
		strings.Join(sets, ", "), arg)
	args = append(args, conversationID)

	result, err := p.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating conversation: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// GetConversation retrieves a conversation by its external id
func (p *PostgresDB) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	query := `
	SELECT conversation_id, session_id, COALESCE(dify_conversation_id, ''), status, delivery_status, initial_context, message_count, created_at, updated_at, completed_at
	FROM conversations
	WHERE conversation_id = $1
	`

	var conv store.Conversation
	var status, deliveryStatus string
	var contextJSON []byte
	var completedAt sql.NullTime

	err := p.conn.QueryRowContext(ctx, query, conversationID).Scan(
		&conv.ConversationID, &conv.SessionID, &conv.DifyConversationID,
		&status, &deliveryStatus, &contextJSON, &conv.MessageCount,
		&conv.CreatedAt, &conv.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving conversation: %w", err)
	}

	conv.Status = store.Status(status)
	conv.DeliveryStatus = store.DeliveryStatus(deliveryStatus)
	if completedAt.Valid {
		conv.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(contextJSON, &conv.InitialContext); err != nil {
		return nil, fmt.Errorf("error decoding initial context: %w", err)
	}

	return &conv, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
