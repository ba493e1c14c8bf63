package store

import (
	"context"
	"errors"
	"time"

	"quotebot/internal/logger"
)

// Dual presents one logical read/write surface over the cache and the
// durable store. The cache is authoritative for liveness, the durable store
// for durability; a hot-path response never blocks on durable-store success.
type Dual struct {
	cache   Cache
	durable Durable
	ttl     time.Duration
}

// NewDual creates a dual-store accessor with the standard conversation TTL
func NewDual(cache Cache, durable Durable, ttl time.Duration) *Dual {
	return &Dual{
		cache:   cache,
		durable: durable,
		ttl:     ttl,
	}
}

// Save writes the conversation through to the cache, then best-effort to the
// durable store. A durable-store failure is logged and swallowed: the cache
// write already satisfies the request.
func (d *Dual) Save(ctx context.Context, conv *Conversation) error {
	if err := d.cache.SaveConversation(ctx, conv.ConversationID, conv, d.ttl); err != nil {
		return err
	}

	if err := d.durable.SaveConversation(ctx, conv); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conv.ConversationID).
			Error("Failed to save conversation to database")
	}

	return nil
}

// Get reads the conversation from the cache, falling back to the durable
// store on a miss and repairing the cache with the recovered record.
// Missing in both stores yields ErrNotFound.
func (d *Dual) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	conv, err := d.cache.GetConversation(ctx, conversationID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("Cache read failed, falling back to database")
	}

	conv, err = d.durable.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// Repair the cache so subsequent reads stay on the hot path
	if err := d.cache.SaveConversation(ctx, conversationID, conv, d.ttl); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("Failed to repair cache after database fallback")
	}

	return conv, nil
}

// Update merges the partial update over the cached record and saves it, then
// applies the same partial update independently to the durable store keyed
// by conversation id. Two concurrent updates on the same conversation can
// interleave; last write wins on the cached record. This race is accepted,
// not solved: turns within one conversation arrive sequentially from a
// single widget.
func (d *Dual) Update(ctx context.Context, conversationID string, update ConversationUpdate) (*Conversation, error) {
	conv, err := d.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	update.Apply(conv)
	if err := d.cache.SaveConversation(ctx, conversationID, conv, d.ttl); err != nil {
		return nil, err
	}

	if err := d.durable.UpdateConversation(ctx, conversationID, update); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Error("Failed to update conversation in database")
	}

	return conv, nil
}

// AppendMessage inserts the message into the durable store unconditionally
// (messages must survive cache eviction) and appends it to the cached
// message list with the conversation TTL. Durable failures are logged and
// swallowed so a database outage degrades recovery, not live traffic.
func (d *Dual) AppendMessage(ctx context.Context, msg *Message) error {
	if err := d.durable.AppendMessage(ctx, msg); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", msg.ConversationID).
			Error("Failed to save message to database")
	}

	return d.cache.AppendMessage(ctx, msg.ConversationID, msg, d.ttl)
}

// ListMessages reads the cached message list; when empty it falls back to
// the durable store, which returns messages ordered by creation time.
func (d *Dual) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	messages, err := d.cache.ListMessages(ctx, conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("Cache message read failed, falling back to database")
	}
	if len(messages) > 0 {
		return messages, nil
	}

	return d.durable.ListMessages(ctx, conversationID)
}
