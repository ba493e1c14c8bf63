package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals a record absent from a store. A miss in the cache is
// not an error for the dual accessor until the durable store also misses.
var ErrNotFound = errors.New("record not found")

// Cache is the low-latency expiring store. Source of truth for active
// traffic; records disappear on TTL expiry or eviction.
type Cache interface {
	SaveConversation(ctx context.Context, conversationID string, conv *Conversation, ttl time.Duration) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg *Message, ttl time.Duration) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// Durable is the relational store. Source of truth for recovery and audit;
// survives cache eviction and restarts.
type Durable interface {
	SaveConversation(ctx context.Context, conv *Conversation) error
	UpdateConversation(ctx context.Context, conversationID string, update ConversationUpdate) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
