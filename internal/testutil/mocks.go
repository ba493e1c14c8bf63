package testutil

import (
	"context"
	"errors"
	"time"

	"quotebot/internal/repository/store"
	"quotebot/internal/service/callback"
	"quotebot/internal/service/dify"
)

// MockCache is a mock implementation of store.Cache for testing
type MockCache struct {
	SaveConversationFunc func(ctx context.Context, conversationID string, conv *store.Conversation, ttl time.Duration) error
	GetConversationFunc  func(ctx context.Context, conversationID string) (*store.Conversation, error)
	AppendMessageFunc    func(ctx context.Context, conversationID string, msg *store.Message, ttl time.Duration) error
	ListMessagesFunc     func(ctx context.Context, conversationID string) ([]store.Message, error)
}

func (m *MockCache) SaveConversation(ctx context.Context, conversationID string, conv *store.Conversation, ttl time.Duration) error {
	if m.SaveConversationFunc != nil {
		return m.SaveConversationFunc(ctx, conversationID, conv, ttl)
	}
	return errors.New("not implemented")
}

func (m *MockCache) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	if m.GetConversationFunc != nil {
		return m.GetConversationFunc(ctx, conversationID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockCache) AppendMessage(ctx context.Context, conversationID string, msg *store.Message, ttl time.Duration) error {
	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, conversationID, msg, ttl)
	}
	return errors.New("not implemented")
}

func (m *MockCache) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, conversationID)
	}
	return nil, errors.New("not implemented")
}

// MockDurable is a mock implementation of store.Durable for testing
type MockDurable struct {
	SaveConversationFunc   func(ctx context.Context, conv *store.Conversation) error
	UpdateConversationFunc func(ctx context.Context, conversationID string, update store.ConversationUpdate) error
	GetConversationFunc    func(ctx context.Context, conversationID string) (*store.Conversation, error)
	AppendMessageFunc      func(ctx context.Context, msg *store.Message) error
	ListMessagesFunc       func(ctx context.Context, conversationID string) ([]store.Message, error)
}

func (m *MockDurable) SaveConversation(ctx context.Context, conv *store.Conversation) error {
	if m.SaveConversationFunc != nil {
		return m.SaveConversationFunc(ctx, conv)
	}
	return errors.New("not implemented")
}

func (m *MockDurable) UpdateConversation(ctx context.Context, conversationID string, update store.ConversationUpdate) error {
	if m.UpdateConversationFunc != nil {
		return m.UpdateConversationFunc(ctx, conversationID, update)
	}
	return errors.New("not implemented")
}

func (m *MockDurable) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	if m.GetConversationFunc != nil {
		return m.GetConversationFunc(ctx, conversationID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDurable) AppendMessage(ctx context.Context, msg *store.Message) error {
	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, msg)
	}
	return errors.New("not implemented")
}

func (m *MockDurable) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, conversationID)
	}
	return nil, errors.New("not implemented")
}

// MockBackend is a mock implementation of dify.Backend for testing
type MockBackend struct {
	CreateConversationFunc func(ctx context.Context, user string, inputs map[string]interface{}, firstMessage string) (*dify.ChatResponse, error)
	SendMessageFunc        func(ctx context.Context, conversationID, user, message string) (*dify.ChatResponse, error)
	GetVariablesFunc       func(ctx context.Context, conversationID, user string) ([]dify.Variable, error)
}

func (m *MockBackend) CreateConversation(ctx context.Context, user string, inputs map[string]interface{}, firstMessage string) (*dify.ChatResponse, error) {
	if m.CreateConversationFunc != nil {
		return m.CreateConversationFunc(ctx, user, inputs, firstMessage)
	}
	return nil, errors.New("not implemented")
}

func (m *MockBackend) SendMessage(ctx context.Context, conversationID, user, message string) (*dify.ChatResponse, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, conversationID, user, message)
	}
	return nil, errors.New("not implemented")
}

func (m *MockBackend) GetVariables(ctx context.Context, conversationID, user string) ([]dify.Variable, error) {
	if m.GetVariablesFunc != nil {
		return m.GetVariablesFunc(ctx, conversationID, user)
	}
	return nil, errors.New("not implemented")
}

// MockDeliverer is a mock implementation of the conversation service's
// Deliverer for testing
type MockDeliverer struct {
	SendFunc func(ctx context.Context, output *callback.FinalOutput) error
}

func (m *MockDeliverer) Send(ctx context.Context, output *callback.FinalOutput) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, output)
	}
	return errors.New("not implemented")
}

// MemoryCache is an in-memory store.Cache that honors eviction by explicit
// deletion rather than TTL, for dual-store tests.
type MemoryCache struct {
	Conversations map[string]*store.Conversation
	Messages      map[string][]store.Message
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		Conversations: make(map[string]*store.Conversation),
		Messages:      make(map[string][]store.Message),
	}
}

func (c *MemoryCache) SaveConversation(ctx context.Context, conversationID string, conv *store.Conversation, ttl time.Duration) error {
	copied := *conv
	c.Conversations[conversationID] = &copied
	return nil
}

func (c *MemoryCache) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, ok := c.Conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (c *MemoryCache) AppendMessage(ctx context.Context, conversationID string, msg *store.Message, ttl time.Duration) error {
	c.Messages[conversationID] = append(c.Messages[conversationID], *msg)
	return nil
}

func (c *MemoryCache) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return c.Messages[conversationID], nil
}

// Evict removes a conversation and its messages, simulating TTL expiry.
func (c *MemoryCache) Evict(conversationID string) {
	delete(c.Conversations, conversationID)
	delete(c.Messages, conversationID)
}

// MemoryDurable is an in-memory store.Durable for dual-store and
// orchestration tests.
type MemoryDurable struct {
	Conversations map[string]*store.Conversation
	Messages      map[string][]store.Message
}

func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{
		Conversations: make(map[string]*store.Conversation),
		Messages:      make(map[string][]store.Message),
	}
}

func (d *MemoryDurable) SaveConversation(ctx context.Context, conv *store.Conversation) error {
	copied := *conv
	d.Conversations[conv.ConversationID] = &copied
	return nil
}

func (d *MemoryDurable) UpdateConversation(ctx context.Context, conversationID string, update store.ConversationUpdate) error {
	conv, ok := d.Conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	update.Apply(conv)
	return nil
}

func (d *MemoryDurable) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, ok := d.Conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (d *MemoryDurable) AppendMessage(ctx context.Context, msg *store.Message) error {
	d.Messages[msg.ConversationID] = append(d.Messages[msg.ConversationID], *msg)
	return nil
}

func (d *MemoryDurable) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return d.Messages[conversationID], nil
}
