// Package redis implements the expiring cache side of the dual store on top
// of a Redis instance, plus the per-session rate limiter.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"quotebot/internal/config"
	"quotebot/internal/logger"
	"quotebot/internal/repository/store"
)

// Ensure Client implements the cache interface
var _ store.Cache = (*Client)(nil)

// Client is a Redis-backed cache for conversation records and message lists
type Client struct {
	rdb *goredis.Client
}

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Log.WithField("addr", cfg.Addr).Info("Connected to Redis")

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping tests the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

func messagesKey(conversationID string) string {
	return "messages:" + conversationID
}

// SaveConversation writes the conversation record with the given TTL
func (c *Client) SaveConversation(ctx context.Context, conversationID string, conv *store.Conversation, ttl time.Duration) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("error encoding conversation: %w", err)
	}

	if err := c.rdb.Set(ctx, conversationKey(conversationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("error writing conversation to cache: %w", err)
	}
	return nil
}

// GetConversation reads the conversation record; a missing key yields
// store.ErrNotFound
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	data, err := c.rdb.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error reading conversation from cache: %w", err)
	}

	var conv store.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("error decoding conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage pushes the message onto the conversation's list and refreshes
// the list TTL to match the conversation record
func (c *Client) AppendMessage(ctx context.Context, conversationID string, msg *store.Message, ttl time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	key := messagesKey(conversationID)
	if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("error appending message to cache: %w", err)
	}
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("error setting message list expiry: %w", err)
	}
	return nil
}

// ListMessages returns all cached messages for the conversation in insertion
// order. An expired or absent list yields an empty slice, not an error.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	raw, err := c.rdb.LRange(ctx, messagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading messages from cache: %w", err)
	}

	messages := make([]store.Message, 0, len(raw))
	for _, item := range raw {
		var msg store.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("error decoding message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CheckRateLimit counts requests for the identifier inside a rolling
// one-minute window and reports whether the request is within the limit
func (c *Client) CheckRateLimit(ctx context.Context, identifier string, limit int) (bool, error) {
	key := "rate_limit:" + identifier

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("error incrementing rate limit counter: %w", err)
	}

	if count == 1 {
		if err := c.rdb.Expire(ctx, key, time.Minute).Err(); err != nil {
			return false, fmt.Errorf("error setting rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}
