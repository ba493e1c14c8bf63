// Package dify is the HTTP client for the conversational AI backend. The
// orchestrator talks to it only through the Backend interface so tests can
// substitute a mock.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"quotebot/internal/config"
	"quotebot/internal/logger"
)

// ErrUpstream marks failures reaching or understanding the AI backend, so
// callers can distinguish upstream unavailability from their own errors
var ErrUpstream = errors.New("ai backend unavailable")

// Backend is the AI-backend surface consumed by the orchestrator
type Backend interface {
	CreateConversation(ctx context.Context, user string, inputs map[string]interface{}, firstMessage string) (*ChatResponse, error)
	SendMessage(ctx context.Context, conversationID, user, message string) (*ChatResponse, error)
	GetVariables(ctx context.Context, conversationID, user string) ([]Variable, error)
}

// Ensure Client implements Backend
var _ Backend = (*Client)(nil)

// ChatRequest is the request body for creating or continuing a turn
type ChatRequest struct {
	Inputs         map[string]interface{} `json:"inputs"`
	Query          string                 `json:"query"`
	ResponseMode   string                 `json:"response_mode"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	User           string                 `json:"user"`
}

// ResponseMetadata carries the fields this service consumes from the
// backend's metadata object
type ResponseMetadata struct {
	ConversationComplete bool                   `json:"conversation_complete,omitempty"`
	StructuredOutput     map[string]interface{} `json:"structured_output,omitempty"`
}

// ChatResponse is the blocking-mode turn response
type ChatResponse struct {
	Event          string            `json:"event"`
	MessageID      string            `json:"message_id"`
	ConversationID string            `json:"conversation_id"`
	Mode           string            `json:"mode"`
	Answer         string            `json:"answer"`
	Metadata       *ResponseMetadata `json:"metadata,omitempty"`
	CreatedAt      int64             `json:"created_at"`
}

// Variable is one entry of the backend's collected-variable snapshot
type Variable struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// HasValue reports whether the variable carries a non-empty, non-null value
func (v Variable) HasValue() bool {
	if v.Value == nil {
		return false
	}
	if s, ok := v.Value.(string); ok {
		return s != ""
	}
	return true
}

type variablesResponse struct {
	Data    []Variable `json:"data"`
	HasMore bool       `json:"has_more"`
}

// Client talks to the Dify API over HTTP with a fixed timeout
type Client struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewClient creates a new Dify API client
func NewClient(cfg config.DifyConfig) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateConversation starts a new conversation on the backend; the response
// carries the remote conversation handle and the first assistant reply
func (c *Client) CreateConversation(ctx context.Context, user string, inputs map[string]interface{}, firstMessage string) (*ChatResponse, error) {
	req := ChatRequest{
		Inputs:       inputs,
		Query:        firstMessage,
		ResponseMode: "blocking",
		User:         user,
	}

	logger.Log.WithField("user", user).Info("Creating Dify conversation")

	resp, err := c.postChatMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error creating Dify conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"dify_conversation_id": resp.ConversationID,
		"user":                 user,
	}).Info("Dify conversation created")

	return resp, nil
}

// SendMessage forwards a user message to an existing backend conversation
func (c *Client) SendMessage(ctx context.Context, conversationID, user, message string) (*ChatResponse, error) {
	req := ChatRequest{
		Inputs:         map[string]interface{}{},
		Query:          message,
		ResponseMode:   "blocking",
		ConversationID: conversationID,
		User:           user,
	}

	resp, err := c.postChatMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error sending message to Dify: %w", err)
	}

	logger.Log.WithField("dify_conversation_id", conversationID).Debug("Received Dify response")

	return resp, nil
}

// GetVariables fetches the backend's structured variable snapshot for a
// conversation. A failing variables endpoint degrades to an empty snapshot
// so it can never fail an otherwise successful turn.
func (c *Client) GetVariables(ctx context.Context, conversationID, user string) ([]Variable, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s/variables?user=%s",
		c.apiURL, conversationID, url.QueryEscape(user))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building variables request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		logger.Log.WithError(err).WithField("dify_conversation_id", conversationID).
			Warn("Variables request failed, returning empty snapshot")
		return []Variable{}, nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		logger.Log.WithFields(logrus.Fields{
			"dify_conversation_id": conversationID,
			"status":               httpResp.StatusCode,
		}).Warn("Variables endpoint returned non-OK status, returning empty snapshot")
		return []Variable{}, nil
	}

	var varsResp variablesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&varsResp); err != nil {
		return nil, fmt.Errorf("error decoding variables response: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"dify_conversation_id": conversationID,
		"variable_count":       len(varsResp.Data),
	}).Debug("Retrieved conversation variables")

	return varsResp.Data, nil
}

func (c *Client) postChatMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, httpResp.StatusCode, string(respBody))
	}

	var resp ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}

	return &resp, nil
}
